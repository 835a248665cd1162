package records

import (
	"errors"
	"fmt"

	"github.com/hollis-dev/basalt/internal/schema"
)

// ValidationError reports a field-level constraint violation. Field
// carries the offending field's id so the API layer can point at it.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed on %q: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("validation failed on %q field %q: %s", e.Collection, e.Field, e.Reason)
}

// UniqueConstraintError reports a duplicate value on a unique field.
type UniqueConstraintError struct {
	Collection string
	Field      string
	Value      any
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("unique constraint on %q field %q: value %v already exists", e.Collection, e.Field, e.Value)
}

// ForbiddenError reports a rule-engine deny. Rule is the expression
// that was evaluated, Reason the human-readable outcome.
type ForbiddenError struct {
	Collection string
	Operation  schema.Operation
	Rule       string
	Reason     string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s on %q forbidden: %s", e.Operation, e.Collection, e.Reason)
}

// SchemaChangedError reports a write that raced a concurrent schema
// mutation and still failed after one internal retry.
type SchemaChangedError struct {
	Collection  string
	SeenVersion int64
	NowVersion  int64
}

func (e *SchemaChangedError) Error() string {
	return fmt.Sprintf("schema for %q changed during write (validated at v%d, now v%d)", e.Collection, e.SeenVersion, e.NowVersion)
}

// ReferentialIntegrityError reports a delete blocked because a
// non-cascading relation still points at the record.
type ReferentialIntegrityError struct {
	// Collection and Field identify the referencing relation.
	Collection string
	Field      string
	// RecordID is the delete target that is still referenced.
	RecordID string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("record %q is still referenced through %s.%s", e.RecordID, e.Collection, e.Field)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUniqueConstraint reports whether err is (or wraps) a
// UniqueConstraintError.
func IsUniqueConstraint(err error) bool {
	var ue *UniqueConstraintError
	return errors.As(err, &ue)
}
