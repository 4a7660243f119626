package foreignkey

import "github.com/goccy/go-json"

// Fields names the columns on one side of a foreign key: a single column
// (Scalar) or an ordered list of columns (Composite).
type Fields interface {
	// Names returns the column names in declaration order.
	Names() []string
	fields()
}

// Scalar names exactly one column.
type Scalar string

// Composite names an ordered list of columns.
type Composite []string

func (s Scalar) Names() []string    { return []string{string(s)} }
func (c Composite) Names() []string { return append([]string(nil), c...) }

func (Scalar) fields()    {}
func (Composite) fields() {}

// malformed holds a decoded fields value that is neither a string nor an
// array of strings. Only Parse and ParseYAML produce it.
type malformed struct {
	raw json.RawMessage
}

func (malformed) Names() []string { return nil }
func (malformed) fields()         {}

func isMalformed(f Fields) bool {
	_, ok := f.(malformed)
	return ok
}

// jsonValue returns the value MarshalJSON renders for f.
func jsonValue(f Fields) any {
	switch v := f.(type) {
	case Scalar:
		return string(v)
	case Composite:
		if v == nil {
			return []string{}
		}
		return []string(v)
	case malformed:
		if len(v.raw) == 0 {
			return nil
		}
		return v.raw
	default:
		return nil
	}
}
