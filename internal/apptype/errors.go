package apptype

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core. Store-level invariant violations
// carry a typed wrapper so callers can surface the specific constraint.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrNoExtractableAction = errors.New("no extractable action in model output")
)

// Constraint names used in ConstraintViolationError.
const (
	ConstraintUnique      = "unique_title"
	ConstraintParentOwner = "parent_owner"
	ConstraintParentKind  = "parent_exists"
	ConstraintImmutable   = "immutable_field"
	ConstraintNotDeleted  = "not_soft_deleted"
)

// ConstraintViolationError reports a rejected write. The transaction that
// produced it has been rolled back completely.
type ConstraintViolationError struct {
	Constraint string
	Detail     string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation (%s): %s", e.Constraint, e.Detail)
}

// NewConstraintViolation builds a ConstraintViolationError with a formatted detail.
func NewConstraintViolation(constraint, format string, args ...any) error {
	return &ConstraintViolationError{Constraint: constraint, Detail: fmt.Sprintf(format, args...)}
}

// IsConstraintViolation reports whether err wraps a ConstraintViolationError.
func IsConstraintViolation(err error) bool {
	var cv *ConstraintViolationError
	return errors.As(err, &cv)
}

// Schema violation reasons.
const (
	ReasonUnknownAction = "unknown_action"
	ReasonMissingField  = "missing_field"
	ReasonEmptyField    = "empty_field"
	ReasonBadType       = "bad_type"
)

// SchemaViolationError names the offending field of a candidate payload.
// These are developer-facing diagnostics; the user sees a generic fallback.
type SchemaViolationError struct {
	Reason string
	Field  string
	Value  string
}

func (e *SchemaViolationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("schema violation (%s): field %q value %q", e.Reason, e.Field, e.Value)
	}
	return fmt.Sprintf("schema violation (%s): field %q", e.Reason, e.Field)
}

// NewUnknownAction reports an action kind outside the closed vocabulary.
// Surfaced rather than silently dropped so prompt drift can be diagnosed.
func NewUnknownAction(kind string) error {
	return &SchemaViolationError{Reason: ReasonUnknownAction, Field: "action", Value: kind}
}

// NewMissingField reports an absent required field for the action kind.
func NewMissingField(field string) error {
	return &SchemaViolationError{Reason: ReasonMissingField, Field: field}
}

// NewEmptyField reports a required field that became empty after trimming.
func NewEmptyField(field, value string) error {
	return &SchemaViolationError{Reason: ReasonEmptyField, Field: field, Value: value}
}

// NewBadType reports a field whose JSON type does not fit the schema.
func NewBadType(field, value string) error {
	return &SchemaViolationError{Reason: ReasonBadType, Field: field, Value: value}
}

// IsSchemaViolation reports whether err wraps a SchemaViolationError.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolationError
	return errors.As(err, &sv)
}
