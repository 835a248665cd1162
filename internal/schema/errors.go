package schema

import (
	"errors"
	"fmt"
)

// DuplicateNameError reports a collection name collision.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("collection name %q already exists", e.Name)
}

// InvalidFieldError reports a structurally invalid field definition,
// including duplicate field ids within one collection.
type InvalidFieldError struct {
	Collection string
	FieldID    string
	Reason     string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("collection %q field %q: %s", e.Collection, e.FieldID, e.Reason)
}

// DanglingRelationError reports a relation field whose target
// collection does not exist.
type DanglingRelationError struct {
	Collection string
	FieldID    string
	Target     string
}

func (e *DanglingRelationError) Error() string {
	return fmt.Sprintf("collection %q field %q: relation target %q does not exist", e.Collection, e.FieldID, e.Target)
}

// ReferentialIntegrityError reports a drop or field removal rejected
// because live records still reference the target.
type ReferentialIntegrityError struct {
	Collection string
	Referencer string
	Count      int
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("collection %q still referenced by %d record(s) of %q", e.Collection, e.Count, e.Referencer)
}

// NotFoundError reports a missing collection or record.
type NotFoundError struct {
	Kind string // "collection" | "record"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
