package ml

import (
	"fmt"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// SchemaError reports a table whose columns cannot be used for the requested
// operation. It unwraps to table.ErrSchema.
type SchemaError struct {
	Op     string
	Column string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := "ml: " + e.Op + ": " + e.Reason
	if e.Column != "" {
		msg = fmt.Sprintf("ml: %s: column %q: %s", e.Op, e.Column, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return table.ErrSchema
}

// EmptyDatasetError is returned when a table without rows is used for
// training or prediction. A table without rows has no usable schema either,
// so it unwraps to table.ErrSchema.
type EmptyDatasetError struct{}

func (EmptyDatasetError) Error() string { return "ml: empty dataset" }

func (EmptyDatasetError) Unwrap() error { return table.ErrSchema }

// ErrEmptyDataset is the EmptyDatasetError value returned by this package.
var ErrEmptyDataset error = EmptyDatasetError{}

// CorruptModelError is returned by Open when a model file cannot be decoded.
type CorruptModelError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptModelError) Error() string {
	msg := fmt.Sprintf("ml: corrupt model %q: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptModelError) Unwrap() error { return e.Err }
