package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/tablekit/internal/apperr"
	"github.com/starford/tablekit/internal/foreignkey"
	"github.com/starford/tablekit/internal/models"
)

// Violation is a row of the declaring resource whose key has no match in
// the referenced resource. Row is the 1-based data row number.
type Violation struct {
	Row    int      `json:"row"`
	Values []string `json:"values"`
}

// CheckForeignKey looks up every key tuple of resource name in the resource
// the key references. The key must be structurally valid first. Rows whose
// key cells are all empty are skipped.
func (db *DB) CheckForeignKey(name string, fk *foreignkey.ForeignKey) ([]Violation, error) {
	if err := fk.Validate(); err != nil {
		return nil, err
	}

	child, err := db.GetResource(name)
	if err != nil {
		return nil, err
	}
	parent := child
	if !fk.Reference.IsSelf() {
		if parent, err = db.GetResource(fk.Reference.ResourceName()); err != nil {
			return nil, err
		}
	}

	local, target := fk.Pairs()
	childCols, err := columnIndexes(child, local)
	if err != nil {
		return nil, err
	}
	parentCols, err := columnIndexes(parent, target)
	if err != nil {
		return nil, err
	}

	parentRows, _, err := db.Rows(parent.Name, 0, 0)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(parentRows))
	for _, row := range parentRows {
		keys[tupleKey(pick(row, parentCols))] = struct{}{}
	}

	childRows := parentRows
	if child.Name != parent.Name {
		if childRows, _, err = db.Rows(child.Name, 0, 0); err != nil {
			return nil, err
		}
	}

	out := []Violation{}
	for i, row := range childRows {
		values := pick(row, childCols)
		if allEmpty(values) {
			continue
		}
		if _, ok := keys[tupleKey(values)]; !ok {
			out = append(out, Violation{Row: i + 1, Values: values})
		}
	}
	return out, nil
}

func columnIndexes(r *models.Resource, fields []string) ([]int, error) {
	pos := make(map[string]int, len(r.Headers))
	for i, h := range r.Headers {
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		idx, ok := pos[f]
		if !ok {
			return nil, fmt.Errorf("catalog: resource %q has no field %q: %w", r.Name, f, apperr.ErrForeignKey)
		}
		out[i] = idx
	}
	return out, nil
}

func pick(row []string, cols []int) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c < len(row) {
			out[i] = row[c]
		}
	}
	return out
}

func allEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

// tupleKey encodes values as length-prefixed cells so that distinct tuples
// never share a key, whatever bytes the cells hold.
func tupleKey(values []string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}
