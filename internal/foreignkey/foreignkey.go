// Package foreignkey holds foreign key declarations and checks that a key
// and its reference have compatible shapes before any row is looked up.
package foreignkey

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tablekit/internal/apperr"
)

const (
	MsgMissingProperties          = "A foreign key must have the fields and reference properties."
	MsgReferenceMissingProperties = "A foreign key's reference must have the fields and resource properties."
	MsgFieldsType                 = "The foreign key's fields property must be a string or an array."
	MsgReferenceFieldsType        = "The foreign key's reference fields property must be a string or an array."
	MsgReferenceFieldsNotArray    = "The reference's fields property must be an array if the outer fields is an array."
	MsgReferenceFieldsNotString   = "The reference's fields property must be a string if the outer fields is a string."
	MsgReferenceFieldsLength      = "The reference's fields property must be an array of the same length as that of the outer fields' array."
)

var (
	errMissingProperties          = validation.NewError("fk_missing_properties", MsgMissingProperties)
	errReferenceMissingProperties = validation.NewError("fk_reference_missing_properties", MsgReferenceMissingProperties)
	errFieldsType                 = validation.NewError("fk_fields_type", MsgFieldsType)
	errReferenceFieldsType        = validation.NewError("fk_reference_fields_type", MsgReferenceFieldsType)
	errReferenceFieldsNotArray    = validation.NewError("fk_reference_fields_not_array", MsgReferenceFieldsNotArray)
	errReferenceFieldsNotString   = validation.NewError("fk_reference_fields_not_string", MsgReferenceFieldsNotString)
	errReferenceFieldsLength      = validation.NewError("fk_reference_fields_length", MsgReferenceFieldsLength)
)

// ValidationError is a structural mismatch in a foreign key declaration.
// It matches apperr.ErrForeignKey.
type ValidationError struct {
	Err validation.Error
}

func violation(e validation.Error) *ValidationError { return &ValidationError{Err: e} }

func (e *ValidationError) Error() string { return e.Err.Message() }

// Code returns the stable violation code, e.g. "fk_fields_type".
func (e *ValidationError) Code() string { return e.Err.Code() }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == apperr.ErrForeignKey }

// Reference is the target side of a foreign key. A nil Resource means the
// property is missing; an empty Resource refers to the declaring table.
type Reference struct {
	Resource *string
	Fields   Fields
}

// NewReference builds a reference to resource. Pass "" for a
// self-reference.
func NewReference(resource string, fields Fields) *Reference {
	return &Reference{Resource: &resource, Fields: fields}
}

// ResourceName returns the referenced table, "" for the declaring table.
func (r *Reference) ResourceName() string {
	if r == nil || r.Resource == nil {
		return ""
	}
	return *r.Resource
}

// IsSelf reports whether the reference points back at the declaring table.
func (r *Reference) IsSelf() bool { return r.ResourceName() == "" }

// Validate checks presence, then the fields type.
func (r *Reference) Validate() error {
	if r.Resource == nil || r.Fields == nil {
		return violation(errReferenceMissingProperties)
	}
	if isMalformed(r.Fields) {
		return violation(errReferenceFieldsType)
	}
	return nil
}

// ForeignKey ties local Fields to a Reference. In strict mode construction
// fails on the first violation; otherwise the key is returned and the
// violation is kept in Errors.
type ForeignKey struct {
	Fields    Fields
	Reference *Reference
	Strict    bool

	errs []error
}

var _ validation.Validatable = (*ForeignKey)(nil)

// New builds and validates a foreign key.
func New(fields Fields, ref *Reference, strict bool) (*ForeignKey, error) {
	return build(&ForeignKey{Fields: fields, Reference: ref, Strict: strict})
}

func build(fk *ForeignKey) (*ForeignKey, error) {
	if err := fk.Validate(); err != nil {
		if fk.Strict {
			return nil, err
		}
		fk.errs = append(fk.errs, err)
	}
	return fk, nil
}

// Validate reports the first violated rule, checking presence, then types,
// then shape, then arity. It does not touch Errors.
func (fk *ForeignKey) Validate() error {
	if fk.Fields == nil || fk.Reference == nil {
		return violation(errMissingProperties)
	}
	if fk.Reference.Resource == nil || fk.Reference.Fields == nil {
		return violation(errReferenceMissingProperties)
	}

	if isMalformed(fk.Fields) {
		return violation(errFieldsType)
	}
	if isMalformed(fk.Reference.Fields) {
		return violation(errReferenceFieldsType)
	}

	switch local := fk.Fields.(type) {
	case Composite:
		target, ok := fk.Reference.Fields.(Composite)
		if !ok {
			return violation(errReferenceFieldsNotArray)
		}
		if len(target) != len(local) {
			return violation(errReferenceFieldsLength)
		}
	case Scalar:
		if _, ok := fk.Reference.Fields.(Scalar); !ok {
			return violation(errReferenceFieldsNotString)
		}
	}
	return nil
}

// Errors returns the violations collected in permissive mode.
func (fk *ForeignKey) Errors() []error {
	return append([]error(nil), fk.errs...)
}

// Valid reports whether no violation was collected.
func (fk *ForeignKey) Valid() bool { return len(fk.errs) == 0 }

// Pairs returns the local and referenced column names side by side. It is
// only meaningful for a valid key.
func (fk *ForeignKey) Pairs() (local, target []string) {
	if fk.Fields == nil || fk.Reference == nil || fk.Reference.Fields == nil {
		return nil, nil
	}
	return fk.Fields.Names(), fk.Reference.Fields.Names()
}
