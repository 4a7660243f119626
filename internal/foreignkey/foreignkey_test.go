package foreignkey

import (
	"errors"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tablekit/internal/apperr"
)

func TestNew_Valid(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		ref    *Reference
	}{
		{"scalar", Scalar("a"), NewReference("people", Scalar("id"))},
		{"composite", Composite{"a", "b"}, NewReference("people", Composite{"x", "y"})},
		{"self", Scalar("parent"), NewReference("", Scalar("id"))},
	}
	for _, c := range cases {
		fk, err := New(c.fields, c.ref, true)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if !fk.Valid() || len(fk.Errors()) != 0 {
			t.Errorf("%s: expected valid key", c.name)
		}
	}
}

func TestNew_StrictViolations(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		ref    *Reference
		msg    string
	}{
		{"no fields", nil, NewReference("t", Scalar("x")), MsgMissingProperties},
		{"no reference", Scalar("a"), nil, MsgMissingProperties},
		{"no resource", Scalar("a"), &Reference{Fields: Scalar("x")}, MsgReferenceMissingProperties},
		{"no reference fields", Scalar("a"), NewReference("t", nil), MsgReferenceMissingProperties},
		{"malformed fields", malformed{raw: json.RawMessage("1")}, NewReference("t", Scalar("x")), MsgFieldsType},
		{"malformed reference fields", Scalar("a"), NewReference("t", malformed{raw: json.RawMessage("{}")}), MsgReferenceFieldsType},
		{"scalar to composite", Scalar("a"), NewReference("t", Composite{"x", "y"}), MsgReferenceFieldsNotString},
		{"composite to scalar", Composite{"a", "b"}, NewReference("t", Scalar("x")), MsgReferenceFieldsNotArray},
		{"arity", Composite{"a", "b"}, NewReference("t", Composite{"x", "y", "z"}), MsgReferenceFieldsLength},
	}
	for _, c := range cases {
		fk, err := New(c.fields, c.ref, true)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if fk != nil {
			t.Errorf("%s: strict mode returned a key", c.name)
		}
		if err.Error() != c.msg {
			t.Errorf("%s: message = %q, want %q", c.name, err.Error(), c.msg)
		}
		if !errors.Is(err, apperr.ErrForeignKey) {
			t.Errorf("%s: error does not match ErrForeignKey", c.name)
		}
	}
}

func TestNew_PresenceBeforeType(t *testing.T) {
	// Missing reference fields wins over a malformed outer fields value.
	_, err := New(malformed{raw: json.RawMessage("1")}, NewReference("t", nil), true)
	if err == nil || err.Error() != MsgReferenceMissingProperties {
		t.Errorf("error = %v", err)
	}
}

func TestNew_Permissive(t *testing.T) {
	fk, err := New(Composite{"a", "b"}, NewReference("t", Composite{"x"}), false)
	if err != nil {
		t.Fatalf("permissive mode returned error: %v", err)
	}
	if fk.Valid() {
		t.Fatal("expected invalid key")
	}
	errs := fk.Errors()
	if len(errs) != 1 || errs[0].Error() != MsgReferenceFieldsLength {
		t.Errorf("errors = %v", errs)
	}
	var ve *ValidationError
	if !errors.As(errs[0], &ve) || ve.Code() != "fk_reference_fields_length" {
		t.Errorf("unexpected error value %#v", errs[0])
	}
}

func TestValidate_Ozzo(t *testing.T) {
	fk := &ForeignKey{Fields: Scalar("a"), Reference: NewReference("t", Composite{"x", "y"})}
	err := validation.Validate(fk)
	if err == nil || err.Error() != MsgReferenceFieldsNotString {
		t.Errorf("validation.Validate = %v", err)
	}
}

func TestReference_Validate(t *testing.T) {
	if err := NewReference("", Scalar("id")).Validate(); err != nil {
		t.Errorf("self reference: %v", err)
	}
	if err := (&Reference{Fields: Scalar("id")}).Validate(); err == nil || err.Error() != MsgReferenceMissingProperties {
		t.Errorf("missing resource: %v", err)
	}
	if err := NewReference("t", malformed{}).Validate(); err == nil || err.Error() != MsgReferenceFieldsType {
		t.Errorf("malformed fields: %v", err)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		msg  string
	}{
		{"valid scalar", `{"fields": "a", "reference": {"resource": "t", "fields": "x"}}`, ""},
		{"valid composite", `{"fields": ["a", "b"], "reference": {"resource": "t", "fields": ["x", "y"]}}`, ""},
		{"self", `{"fields": "a", "reference": {"resource": "", "fields": "id"}}`, ""},
		{"empty object", `{}`, MsgMissingProperties},
		{"null reference", `{"fields": "a", "reference": null}`, MsgMissingProperties},
		{"no resource", `{"fields": "a", "reference": {"fields": "x"}}`, MsgReferenceMissingProperties},
		{"number fields", `{"fields": 3, "reference": {"resource": "t", "fields": "x"}}`, MsgFieldsType},
		{"mixed array", `{"fields": ["a", 1], "reference": {"resource": "t", "fields": ["x", "y"]}}`, MsgFieldsType},
		{"object reference fields", `{"fields": "a", "reference": {"resource": "t", "fields": {"x": 1}}}`, MsgReferenceFieldsType},
		{"scalar vs array", `{"fields": "a", "reference": {"resource": "t", "fields": ["x", "y"]}}`, MsgReferenceFieldsNotString},
		{"array vs scalar", `{"fields": ["a"], "reference": {"resource": "t", "fields": "x"}}`, MsgReferenceFieldsNotArray},
		{"arity", `{"fields": ["a", "b"], "reference": {"resource": "t", "fields": ["x", "y", "z"]}}`, MsgReferenceFieldsLength},
	}
	for _, c := range cases {
		fk, err := Parse([]byte(c.doc), false)
		if err != nil {
			t.Errorf("%s: permissive parse failed: %v", c.name, err)
			continue
		}
		switch {
		case c.msg == "" && !fk.Valid():
			t.Errorf("%s: unexpected violations %v", c.name, fk.Errors())
		case c.msg != "" && (fk.Valid() || fk.Errors()[0].Error() != c.msg):
			t.Errorf("%s: errors = %v, want %q", c.name, fk.Errors(), c.msg)
		}

		_, err = Parse([]byte(c.doc), true)
		if (c.msg == "") != (err == nil) {
			t.Errorf("%s: strict error = %v", c.name, err)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, doc := range []string{``, `[]`, `"a"`, `{"fields": `, `{"fields": "a", "reference": "t"}`, `{"reference": {"resource": 5}}`} {
		_, err := Parse([]byte(doc), false)
		if !errors.Is(err, apperr.ErrParse) {
			t.Errorf("Parse(%q) error = %v, want ErrParse", doc, err)
		}
	}
}

func TestParse_SelfReference(t *testing.T) {
	fk, err := Parse([]byte(`{"fields": "parent", "reference": {"resource": "", "fields": "id"}}`), true)
	if err != nil {
		t.Fatal(err)
	}
	if !fk.Reference.IsSelf() {
		t.Error("expected a self reference")
	}
	local, target := fk.Pairs()
	if !reflect.DeepEqual(local, []string{"parent"}) || !reflect.DeepEqual(target, []string{"id"}) {
		t.Errorf("pairs = %v %v", local, target)
	}
}

func TestParseAll(t *testing.T) {
	doc := `[
	  {"fields": "a", "reference": {"resource": "t", "fields": "x"}},
	  {"fields": ["a", "b"], "reference": {"resource": "t", "fields": ["x"]}}
	]`
	fks, err := ParseAll([]byte(doc), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fks) != 2 || !fks[0].Valid() || fks[1].Valid() {
		t.Errorf("unexpected result: %d keys", len(fks))
	}
	if _, err := ParseAll([]byte(doc), true); !errors.Is(err, apperr.ErrForeignKey) {
		t.Errorf("strict ParseAll error = %v", err)
	}

	single, err := ParseAll([]byte(`{"fields": "a", "reference": {"resource": "t", "fields": "x"}}`), true)
	if err != nil || len(single) != 1 {
		t.Errorf("single document: %v %v", single, err)
	}
}

func TestParseYAML(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		msg  string
	}{
		{"valid", "fields: [a, b]\nreference:\n  resource: people\n  fields: [x, y]\n", ""},
		{"self", "fields: parent\nreference:\n  resource: ''\n  fields: id\n", ""},
		{"missing", "fields: a\n", MsgMissingProperties},
		{"null resource", "fields: a\nreference:\n  resource: ~\n  fields: x\n", MsgReferenceMissingProperties},
		{"int fields", "fields: 7\nreference:\n  resource: t\n  fields: x\n", MsgFieldsType},
		{"map reference fields", "fields: a\nreference:\n  resource: t\n  fields: {x: 1}\n", MsgReferenceFieldsType},
		{"scalar vs array", "fields: a\nreference:\n  resource: t\n  fields: [x, y]\n", MsgReferenceFieldsNotString},
		{"arity", "fields: [a, b]\nreference:\n  resource: t\n  fields: [x, y, z]\n", MsgReferenceFieldsLength},
	}
	for _, c := range cases {
		fk, err := ParseYAML([]byte(c.doc), false)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if c.msg == "" {
			if !fk.Valid() {
				t.Errorf("%s: unexpected violations %v", c.name, fk.Errors())
			}
			continue
		}
		if fk.Valid() || fk.Errors()[0].Error() != c.msg {
			t.Errorf("%s: errors = %v, want %q", c.name, fk.Errors(), c.msg)
		}
	}

	if _, err := ParseYAML([]byte("fields: a\nreference: people\n"), true); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("scalar reference: error = %v, want ErrParse", err)
	}
}

func TestMarshalJSON(t *testing.T) {
	fk, err := New(Composite{"a", "b"}, NewReference("people", Composite{"x", "y"}), true)
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(fk)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"fields":["a","b"],"reference":{"resource":"people","fields":["x","y"]}}`
	if string(out) != want {
		t.Errorf("MarshalJSON = %s, want %s", out, want)
	}

	again, err := Parse(out, true)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Fields, fk.Fields) || again.Reference.ResourceName() != "people" {
		t.Errorf("reparsed key differs: %+v", again)
	}
}

func TestMarshalJSON_SelfAndMissing(t *testing.T) {
	fk, _ := New(Scalar("parent"), NewReference("", Scalar("id")), true)
	out, _ := json.Marshal(fk)
	if string(out) != `{"fields":"parent","reference":{"resource":"","fields":"id"}}` {
		t.Errorf("self = %s", out)
	}

	bare, _ := New(Scalar("a"), nil, false)
	out, _ = json.Marshal(bare)
	if string(out) != `{"fields":"a"}` {
		t.Errorf("missing reference = %s", out)
	}
}
