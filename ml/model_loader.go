package ml

import (
	"errors"
)

// RandomForestModel is the model type persisted by Machine.Save.
const RandomForestModel = "random_forest"

// LoadModel opens a saved model of the given type. An empty type means
// RandomForestModel.
func LoadModel(modelType, path string) (*Machine, error) {
	switch modelType {
	case RandomForestModel, "":
		return Open(path)
	default:
		return nil, errors.New("unsupported model type")
	}
}
