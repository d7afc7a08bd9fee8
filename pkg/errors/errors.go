package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies domain errors
type ErrorType string

const (
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// ValidationKind narrows a validation error down to the rule that failed
type ValidationKind string

const (
	ValidationKindGeneric          ValidationKind = ""
	ValidationKindMissingField     ValidationKind = "missing_field"
	ValidationKindDuplicateName    ValidationKind = "duplicate_name"
	ValidationKindInvalidValue     ValidationKind = "invalid_value"
	ValidationKindConflictingField ValidationKind = "conflicting_field"
)

// DomainError is the error type returned by all hsu-launch packages
type DomainError struct {
	Type    ErrorType
	Kind    ValidationKind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	if e.Kind != ValidationKindGeneric {
		sb.WriteString("(")
		sb.WriteString(string(e.Kind))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(errorType ErrorType, kind ValidationKind, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func NewParseError(message string, cause error) *DomainError {
	return newError(ErrorTypeParse, ValidationKindGeneric, message, cause)
}

func NewValidationError(message string, cause error) *DomainError {
	return newError(ErrorTypeValidation, ValidationKindGeneric, message, cause)
}

// NewMissingFieldError reports a required field that is absent or empty
func NewMissingFieldError(field string) *DomainError {
	return newError(ErrorTypeValidation, ValidationKindMissingField,
		fmt.Sprintf("required field '%s' is missing or empty", field), nil).WithContext("field", field)
}

// NewDuplicateNameError reports a name already used by an earlier entry
func NewDuplicateNameError(name string, firstIndex, secondIndex int) *DomainError {
	return newError(ErrorTypeValidation, ValidationKindDuplicateName,
		fmt.Sprintf("duplicate name '%s' found at indices %d and %d", name, firstIndex, secondIndex), nil).
		WithContext("name", name)
}

func NewInvalidValueError(field string, message string, cause error) *DomainError {
	return newError(ErrorTypeValidation, ValidationKindInvalidValue, message, cause).WithContext("field", field)
}

// NewConflictingFieldError reports two spellings of the same field carrying different values
func NewConflictingFieldError(field, alias string) *DomainError {
	return newError(ErrorTypeValidation, ValidationKindConflictingField,
		fmt.Sprintf("fields '%s' and '%s' are both set with different values", field, alias), nil).
		WithContext("field", field).WithContext("alias", alias)
}

func NewIOError(message string, cause error) *DomainError {
	return newError(ErrorTypeIO, ValidationKindGeneric, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return newError(ErrorTypeProcess, ValidationKindGeneric, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return newError(ErrorTypeConflict, ValidationKindGeneric, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return newError(ErrorTypeNotFound, ValidationKindGeneric, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return newError(ErrorTypeInternal, ValidationKindGeneric, message, cause)
}

// Predicates walk the whole cause chain, so a wrapped kind is still found
// under outer validation errors that only add context.

func IsParseError(err error) bool {
	return hasType(err, ErrorTypeParse)
}

func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

func IsProcessError(err error) bool {
	return hasType(err, ErrorTypeProcess)
}

func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

func IsMissingField(err error) bool {
	return hasKind(err, ValidationKindMissingField)
}

func IsDuplicateName(err error) bool {
	return hasKind(err, ValidationKindDuplicateName)
}

func IsInvalidValue(err error) bool {
	return hasKind(err, ValidationKindInvalidValue)
}

func IsConflictingField(err error) bool {
	return hasKind(err, ValidationKindConflictingField)
}

func hasType(err error, errorType ErrorType) bool {
	found := false
	walk(err, func(de *DomainError) bool {
		found = de.Type == errorType
		return found
	})
	return found
}

func hasKind(err error, kind ValidationKind) bool {
	found := false
	walk(err, func(de *DomainError) bool {
		found = de.Type == ErrorTypeValidation && de.Kind == kind
		return found
	})
	return found
}

// walk visits every DomainError in the chain until visit returns true
func walk(err error, visit func(*DomainError) bool) {
	for err != nil {
		var de *DomainError
		if !stderrors.As(err, &de) {
			return
		}
		if visit(de) {
			return
		}
		err = de.Cause
	}
}
