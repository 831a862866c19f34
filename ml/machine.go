package ml

import (
	"fmt"
	"sort"
	"time"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// ModelName is the fixed descriptive name of every Machine.
const ModelName = "Random Forest Classifier"

// InfoTimeLayout is the timestamp layout used by Machine.Info.
const InfoTimeLayout = "2006-01-02 15:04:05.000000"

// Machine owns one trained random forest together with the feature schema it
// was trained on. A Machine is immutable once NewMachine or Open returns it;
// retraining means building a new Machine.
type Machine struct {
	Name      string
	Timestamp time.Time

	target   string
	features table.Schema
	encoders map[string][]string
	classes  []string
	model    *RandomForest

	codes map[string]map[string]int
}

// NewMachine trains a classifier predicting target from every other column
// of t. Numeric columns are used as is and categorical columns are label
// encoded; text and time feature columns are rejected. Target values of any
// kind are formatted into class labels.
func NewMachine(t *table.Table, target string, opts ...ForestOption) (*Machine, error) {
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	schema := t.Schema()
	targetIdx := schema.Index(target)
	if targetIdx < 0 {
		return nil, &SchemaError{Op: "construct", Column: target, Reason: "target column not found"}
	}
	features := make(table.Schema, 0, len(schema)-1)
	for _, col := range schema {
		if col.Name == target {
			continue
		}
		if col.Kind != table.Numeric && col.Kind != table.Categorical {
			return nil, &SchemaError{Op: "construct", Column: col.Name, Reason: "unsupported feature type " + col.Kind.String()}
		}
		features = append(features, col)
	}
	if len(features) == 0 {
		return nil, &SchemaError{Op: "construct", Reason: "no feature columns"}
	}

	m := &Machine{
		Name:     ModelName,
		target:   target,
		features: features,
		encoders: make(map[string][]string),
	}
	for _, col := range features {
		if col.Kind != table.Categorical {
			continue
		}
		values, _ := t.Column(col.Name)
		m.encoders[col.Name] = labelEncoder(values)
	}
	m.buildCodes()

	targets, _ := t.Column(target)
	m.classes = classSet(targets)
	classIdx := make(map[string]int, len(m.classes))
	for i, c := range m.classes {
		classIdx[c] = i
	}
	labels := make([]int, len(targets))
	for i, v := range targets {
		labels[i] = classIdx[table.FormatValue(v)]
	}

	vectors := make([][]float64, t.Len())
	for i := range vectors {
		row := t.Row(i)
		vec := make([]float64, 0, len(features))
		for j, col := range schema {
			if j == targetIdx {
				continue
			}
			x, err := m.encode(col, row[j])
			if err != nil {
				return nil, err
			}
			vec = append(vec, x)
		}
		vectors[i] = vec
	}

	forest := NewRandomForest(opts...)
	forest.NClasses = len(m.classes)
	if err := forest.Train(vectors, labels); err != nil {
		return nil, fmt.Errorf("ml: fit: %w", err)
	}
	m.model = forest
	m.Timestamp = time.Now()
	return m, nil
}

// Predict accepts one or more rows in the training feature schema but only
// evaluates the first row, returning its predicted label and the highest
// class probability of that row.
func (m *Machine) Predict(rows *table.Table) (string, float64, error) {
	if rows == nil || rows.Len() == 0 {
		return "", 0, ErrEmptyDataset
	}
	if got := rows.Schema(); !got.Equal(m.features) {
		return "", 0, &SchemaError{
			Op:     "predict",
			Reason: fmt.Sprintf("feature columns %v do not match training columns %v", describe(got), describe(m.features)),
		}
	}
	row := rows.Row(0)
	vec := make([]float64, len(m.features))
	for j, col := range m.features {
		x, err := m.encode(col, row[j])
		if err != nil {
			return "", 0, err
		}
		vec[j] = x
	}
	probs, err := m.model.PredictProba(vec)
	if err != nil {
		return "", 0, fmt.Errorf("ml: predict: %w", err)
	}
	best := argmax(probs)
	return m.classes[best], probs[best], nil
}

// PredictRecord predicts from a single record keyed by feature name. A
// value under the target name is ignored; any other unknown key is an error.
func (m *Machine) PredictRecord(rec table.Record) (string, float64, error) {
	features := make(table.Record, len(m.features))
	for key, v := range rec {
		if key == m.target {
			continue
		}
		if m.features.Index(key) < 0 {
			return "", 0, &SchemaError{Op: "predict", Column: key, Reason: "unknown feature column"}
		}
		features[key] = v
	}
	for _, col := range m.features {
		if _, ok := features[col.Name]; !ok {
			return "", 0, &SchemaError{Op: "predict", Column: col.Name, Reason: "missing feature column"}
		}
	}
	rows, err := table.FromRecordsWithSchema(m.features, []table.Record{features})
	if err != nil {
		return "", 0, &SchemaError{Op: "predict", Reason: "invalid feature values", Err: err}
	}
	return m.Predict(rows)
}

// Info describes the model and when it was trained.
func (m *Machine) Info() string {
	return fmt.Sprintf("%s model initialized at %s", m.Name, m.Timestamp.Format(InfoTimeLayout))
}

// Target is the name of the predicted column.
func (m *Machine) Target() string { return m.target }

// Features returns a copy of the training feature schema.
func (m *Machine) Features() table.Schema { return append(table.Schema(nil), m.features...) }

// Classes returns the sorted class labels.
func (m *Machine) Classes() []string { return append([]string(nil), m.classes...) }

func (m *Machine) encode(col table.Column, v any) (float64, error) {
	if col.Kind == table.Numeric {
		return v.(float64), nil
	}
	s := v.(string)
	code, ok := m.codes[col.Name][s]
	if !ok {
		return 0, &SchemaError{Op: "predict", Column: col.Name, Reason: fmt.Sprintf("unknown category %q", s)}
	}
	return float64(code), nil
}

func (m *Machine) buildCodes() {
	m.codes = make(map[string]map[string]int, len(m.encoders))
	for name, values := range m.encoders {
		codes := make(map[string]int, len(values))
		for i, v := range values {
			codes[v] = i
		}
		m.codes[name] = codes
	}
}

// labelEncoder assigns codes in order of first appearance.
func labelEncoder(values []any) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, v := range values {
		s := v.(string)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func classSet(values []any) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, v := range values {
		s := table.FormatValue(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func describe(s table.Schema) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name + ":" + c.Kind.String()
	}
	return out
}
