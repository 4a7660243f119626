// Package apperr defines the error classes shared across tablekit.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrPathSecurity = errors.New("path security violation")
	ErrIO           = errors.New("i/o failure")
	ErrParse        = errors.New("parse failure")
	ErrType         = errors.New("unsupported type")
	ErrForeignKey   = errors.New("foreign key validation failed")
)

// PathSecurityError reports a candidate path that resolves outside its trusted base.
type PathSecurityError struct {
	Candidate string
	Base      string
	Reason    string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("path %q rejected against base %q: %s", e.Candidate, e.Base, e.Reason)
}

func (e *PathSecurityError) Is(target error) bool { return target == ErrPathSecurity }

// IOError reports an open or read failure on a file, URL or archive entry.
// Unwrap exposes the cause, so errors.Is(err, fs.ErrNotExist) still works.
type IOError struct {
	Op      string
	Locator string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Locator, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ParseError reports a malformed CSV or JSON payload.
type ParseError struct {
	Source   string
	Line     int
	Column   int
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Source
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
		if e.Column > 0 {
			msg += fmt.Sprintf(" column %d", e.Column)
		}
	}
	if e.Fragment != "" {
		msg += fmt.Sprintf(" near %q", e.Fragment)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// TypeError reports a value of a shape the callee cannot handle.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("unsupported value of type %T", e.Value)
}

func (e *TypeError) Is(target error) bool { return target == ErrType }
