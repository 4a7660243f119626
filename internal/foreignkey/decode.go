package foreignkey

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/starford/tablekit/internal/apperr"
)

type jsonDecl struct {
	Fields    json.RawMessage `json:"fields"`
	Reference json.RawMessage `json:"reference"`
}

type jsonRef struct {
	Resource json.RawMessage `json:"resource"`
	Fields   json.RawMessage `json:"fields"`
}

// Parse decodes one declaration document,
//
//	{"fields": "a" | [...], "reference": {"resource": "t", "fields": "x" | [...]}}
//
// and validates it like New. A document that is not a JSON object fails
// with an *apperr.ParseError.
func Parse(doc []byte, strict bool) (*ForeignKey, error) {
	fk, err := decodeJSON(doc)
	if err != nil {
		return nil, err
	}
	fk.Strict = strict
	return build(fk)
}

// ParseAll decodes either a single declaration or a JSON array of them.
// In strict mode the first invalid declaration aborts.
func ParseAll(doc []byte, strict bool) ([]*ForeignKey, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		fk, err := Parse(trimmed, strict)
		if err != nil {
			return nil, err
		}
		return []*ForeignKey{fk}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, parseErr("json", trimmed, err)
	}
	out := make([]*ForeignKey, 0, len(items))
	for i, item := range items {
		fk, err := Parse(item, strict)
		if err != nil {
			return nil, fmt.Errorf("foreignkey: declaration %d: %w", i, err)
		}
		out = append(out, fk)
	}
	return out, nil
}

func decodeJSON(doc []byte) (*ForeignKey, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, parseErr("json", trimmed, errors.New("expected a JSON object"))
	}
	var decl jsonDecl
	if err := json.Unmarshal(trimmed, &decl); err != nil {
		return nil, parseErr("json", trimmed, err)
	}

	fk := &ForeignKey{Fields: jsonFields(decl.Fields)}
	if isNull(decl.Reference) {
		return fk, nil
	}
	if bytes.TrimSpace(decl.Reference)[0] != '{' {
		return nil, parseErr("json", decl.Reference, errors.New("reference must be an object"))
	}
	var ref jsonRef
	if err := json.Unmarshal(decl.Reference, &ref); err != nil {
		return nil, parseErr("json", decl.Reference, err)
	}
	fk.Reference = &Reference{Fields: jsonFields(ref.Fields)}
	if !isNull(ref.Resource) {
		var name string
		if err := json.Unmarshal(ref.Resource, &name); err != nil {
			return nil, parseErr("json", ref.Resource, errors.New("resource must be a string"))
		}
		fk.Reference.Resource = &name
	}
	return fk, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// jsonFields maps a raw fields value onto the Fields union. Missing or null
// yields nil; anything other than a string or an array of strings is kept
// as malformed so validation can report it.
func jsonFields(raw json.RawMessage) Fields {
	if isNull(raw) {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return Scalar(s)
		}
	case '[':
		var items []any
		if json.Unmarshal(raw, &items) != nil {
			break
		}
		names := make(Composite, 0, len(items))
		for _, it := range items {
			name, ok := it.(string)
			if !ok {
				return malformed{raw: append(json.RawMessage(nil), raw...)}
			}
			names = append(names, name)
		}
		return names
	}
	return malformed{raw: append(json.RawMessage(nil), raw...)}
}

type yamlDecl struct {
	Fields    yaml.Node `yaml:"fields"`
	Reference yaml.Node `yaml:"reference"`
}

type yamlRef struct {
	Resource yaml.Node `yaml:"resource"`
	Fields   yaml.Node `yaml:"fields"`
}

// ParseYAML is Parse for a YAML declaration document of the same shape.
func ParseYAML(doc []byte, strict bool) (*ForeignKey, error) {
	var decl yamlDecl
	if err := yaml.Unmarshal(doc, &decl); err != nil {
		return nil, parseErr("yaml", doc, err)
	}

	fk := &ForeignKey{Fields: yamlFields(&decl.Fields), Strict: strict}
	if !yamlNull(&decl.Reference) {
		if decl.Reference.Kind != yaml.MappingNode {
			return nil, parseErr("yaml", []byte(decl.Reference.Value), errors.New("reference must be a mapping"))
		}
		var ref yamlRef
		if err := decl.Reference.Decode(&ref); err != nil {
			return nil, parseErr("yaml", doc, err)
		}
		fk.Reference = &Reference{Fields: yamlFields(&ref.Fields)}
		if !yamlNull(&ref.Resource) {
			if ref.Resource.Kind != yaml.ScalarNode || ref.Resource.ShortTag() != "!!str" {
				return nil, parseErr("yaml", []byte(ref.Resource.Value), errors.New("resource must be a string"))
			}
			name := ref.Resource.Value
			fk.Reference.Resource = &name
		}
	}
	return build(fk)
}

func yamlNull(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

func yamlFields(n *yaml.Node) Fields {
	if yamlNull(n) {
		return nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!str" {
			return Scalar(n.Value)
		}
	case yaml.SequenceNode:
		names := make(Composite, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode || c.ShortTag() != "!!str" {
				return yamlMalformed(n)
			}
			names = append(names, c.Value)
		}
		return names
	}
	return yamlMalformed(n)
}

func yamlMalformed(n *yaml.Node) Fields {
	var v any
	if err := n.Decode(&v); err != nil {
		return malformed{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return malformed{}
	}
	return malformed{raw: raw}
}

func parseErr(source string, fragment []byte, err error) error {
	const limit = 40
	if len(fragment) > limit {
		fragment = fragment[:limit]
	}
	return &apperr.ParseError{Source: "foreign key " + source, Fragment: string(fragment), Err: err}
}

type refDoc struct {
	Resource *string `json:"resource,omitempty"`
	Fields   any     `json:"fields,omitempty"`
}

type declDoc struct {
	Fields    any     `json:"fields,omitempty"`
	Reference *refDoc `json:"reference,omitempty"`
}

// MarshalJSON renders the declaration document shape accepted by Parse.
// Missing properties are omitted.
func (fk *ForeignKey) MarshalJSON() ([]byte, error) {
	doc := declDoc{Fields: jsonValue(fk.Fields)}
	if fk.Reference != nil {
		doc.Reference = &refDoc{
			Resource: fk.Reference.Resource,
			Fields:   jsonValue(fk.Reference.Fields),
		}
	}
	return json.Marshal(doc)
}
