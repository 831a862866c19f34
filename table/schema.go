package table

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// ErrSchema is returned (wrapped) whenever a value or a column set does not
// match the schema it is checked against.
var ErrSchema = errors.New("schema mismatch")

// Record is one document as emitted by a generator or read back from a store.
type Record = map[string]any

// Kind is the declared type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Text
	Time
)

// CategoricalLimit is the largest number of distinct string values a column
// may hold and still be inferred as Categorical instead of Text.
const CategoricalLimit = 32

// TimeLayout is the layout used to render and parse Time values.
const TimeLayout = "2006-01-02 15:04:05"

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Text:
		return "text"
	case Time:
		return "time"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "numeric":
		return Numeric, nil
	case "categorical":
		return Categorical, nil
	case "text":
		return Text, nil
	case "time":
		return Time, nil
	default:
		return 0, fmt.Errorf("%w: unknown column kind %q", ErrSchema, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < Numeric || k > Time {
		return nil, fmt.Errorf("%w: invalid kind %d", ErrSchema, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Column is one (name, kind) pair of a Schema.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is the ordered column description of a Table.
type Schema []Column

// Names lists the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether both schemas hold the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Schema) validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, c := range s {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrSchema)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("%w: duplicate column %q", ErrSchema, c.Name)
		}
		if c.Kind < Numeric || c.Kind > Time {
			return fmt.Errorf("%w: column %q has invalid kind %d", ErrSchema, c.Name, c.Kind)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// InferSchema derives a schema from a homogeneous set of records. Columns
// listed in order come first (when present), the rest follow lexically.
func InferSchema(records []Record, order ...string) (Schema, error) {
	if len(records) == 0 {
		return Schema{}, nil
	}
	keys := make([]string, 0, len(records[0]))
	for key := range records[0] {
		keys = append(keys, key)
	}
	for i, rec := range records[1:] {
		if len(rec) != len(keys) {
			return nil, fmt.Errorf("%w: record %d has %d fields, expected %d", ErrSchema, i+1, len(rec), len(keys))
		}
		for _, key := range keys {
			if _, ok := rec[key]; !ok {
				return nil, fmt.Errorf("%w: record %d is missing field %q", ErrSchema, i+1, key)
			}
		}
	}

	names := orderNames(keys, order)
	schema := make(Schema, len(names))
	for i, name := range names {
		kind, err := inferKind(records, name)
		if err != nil {
			return nil, err
		}
		schema[i] = Column{Name: name, Kind: kind}
	}
	return schema, nil
}

func orderNames(keys []string, order []string) []string {
	present := make(map[string]bool, len(keys))
	for _, key := range keys {
		present[key] = true
	}
	names := make([]string, 0, len(keys))
	for _, name := range order {
		if present[name] {
			names = append(names, name)
			delete(present, name)
		}
	}
	rest := make([]string, 0, len(present))
	for key := range present {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func inferKind(records []Record, name string) (Kind, error) {
	var numeric, strs, times, bools int
	distinct := make(map[string]struct{})
	allTimes := true
	for i, rec := range records {
		switch v := rec[name].(type) {
		case nil:
			return 0, fmt.Errorf("%w: record %d has no value for %q", ErrSchema, i, name)
		case bool:
			bools++
		case time.Time:
			times++
		case string:
			strs++
			distinct[v] = struct{}{}
			if _, err := parseTime(v); err != nil {
				allTimes = false
			}
		default:
			if _, ok := toFloat(v); !ok {
				return 0, fmt.Errorf("%w: column %q holds unsupported value type %T", ErrSchema, name, v)
			}
			numeric++
		}
	}
	n := len(records)
	switch {
	case numeric == n:
		return Numeric, nil
	case times == n:
		return Time, nil
	case bools == n:
		return Categorical, nil
	case strs == n && allTimes:
		return Time, nil
	case strs == n && len(distinct) <= CategoricalLimit:
		return Categorical, nil
	case strs == n:
		return Text, nil
	default:
		return 0, fmt.Errorf("%w: column %q mixes value types", ErrSchema, name)
	}
}

// coerce normalises v to the canonical Go type of kind: float64 for
// Numeric, string for Categorical and Text, time.Time for Time.
func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case Numeric:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not numeric", ErrSchema, v, v)
		}
		return f, nil
	case Categorical:
		switch s := v.(type) {
		case string:
			return s, nil
		case bool:
			return strconv.FormatBool(s), nil
		}
		return nil, fmt.Errorf("%w: %v (%T) is not categorical", ErrSchema, v, v)
	case Text:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %v (%T) is not text", ErrSchema, v, v)
	case Time:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := parseTime(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a time", ErrSchema, t)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("%w: %v (%T) is not a time", ErrSchema, v, v)
	}
	return nil, fmt.Errorf("%w: invalid kind %d", ErrSchema, kind)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case interface{ Float64() (float64, error) }:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatValue renders a canonical cell value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(TimeLayout)
	case bool:
		return strconv.FormatBool(x)
	default:
		if f, ok := toFloat(x); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprint(x)
	}
}
