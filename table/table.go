// Package table holds column-homogeneous record collections with an explicit
// schema, materialised from a record store for training and charting.
package table

import (
	"fmt"
)

// Table is an insertion-ordered set of rows sharing one schema. Cells hold
// canonical values only (see coerce). A Table is never mutated after New.
type Table struct {
	schema Schema
	rows   [][]any
}

// New validates every cell against schema and returns the table.
func New(schema Schema, rows [][]any) (*Table, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrSchema, i, len(row), len(schema))
		}
		cells := make([]any, len(row))
		for j, v := range row {
			c, err := coerce(schema[j].Kind, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, schema[j].Name, err)
			}
			cells[j] = c
		}
		out[i] = cells
	}
	return &Table{schema: append(Schema(nil), schema...), rows: out}, nil
}

// FromRecords infers a schema from records and builds the table from them.
func FromRecords(records []Record, order ...string) (*Table, error) {
	schema, err := InferSchema(records, order...)
	if err != nil {
		return nil, err
	}
	return FromRecordsWithSchema(schema, records)
}

// FromRecordsWithSchema builds a table whose columns are exactly schema.
// Records carrying extra or missing fields are rejected.
func FromRecordsWithSchema(schema Schema, records []Record) (*Table, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		if len(rec) != len(schema) {
			return nil, fmt.Errorf("%w: record %d has %d fields, expected %d", ErrSchema, i, len(rec), len(schema))
		}
		row := make([]any, len(schema))
		for j, col := range schema {
			v, ok := rec[col.Name]
			if !ok {
				return nil, fmt.Errorf("%w: record %d is missing field %q", ErrSchema, i, col.Name)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return New(schema, rows)
}

// Schema returns the column description shared by every row.
func (t *Table) Schema() Schema {
	return append(Schema(nil), t.schema...)
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Column returns the values of the named column in row order.
func (t *Table) Column(name string) ([]any, error) {
	idx := t.schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no column %q", ErrSchema, name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	indices := make([]int, len(names))
	schema := make(Schema, len(names))
	for i, name := range names {
		idx := t.schema.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: no column %q", ErrSchema, name)
		}
		indices[i] = idx
		schema[i] = t.schema[idx]
	}
	if err := schema.validate(); err != nil {
		return nil, err
	}
	rows := make([][]any, len(t.rows))
	for i, row := range t.rows {
		cells := make([]any, len(indices))
		for j, idx := range indices {
			cells[j] = row[idx]
		}
		rows[i] = cells
	}
	return &Table{schema: schema, rows: rows}, nil
}

// Drop returns a table without the named column.
func (t *Table) Drop(name string) (*Table, error) {
	if t.schema.Index(name) < 0 {
		return nil, fmt.Errorf("%w: no column %q", ErrSchema, name)
	}
	keep := make([]string, 0, len(t.schema)-1)
	for _, c := range t.schema {
		if c.Name != name {
			keep = append(keep, c.Name)
		}
	}
	return t.Select(keep...)
}

// Subset returns the rows at indices, in that order.
func (t *Table) Subset(indices []int) *Table {
	rows := make([][]any, len(indices))
	for i, idx := range indices {
		rows[i] = t.rows[idx]
	}
	return &Table{schema: t.schema, rows: rows}
}

// Records returns every row as a Record keyed by column name.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.rows))
	for i, row := range t.rows {
		rec := make(Record, len(t.schema))
		for j, c := range t.schema {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out
}
