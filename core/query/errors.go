package query

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilterValue is matched by every InvalidFilterValueError.
	ErrInvalidFilterValue = errors.New("invalid filter value")
	// ErrTypeCoercion is matched by every TypeCoercionError.
	ErrTypeCoercion = errors.New("type coercion failed")
	// ErrParse is matched by every ParseError.
	ErrParse = errors.New("parse failed")
)

// InvalidFilterValueError reports a descriptor whose value does not fit the
// arity or nullability its operator requires.
type InvalidFilterValueError struct {
	Field    string
	Operator FilterOperator
	Reason   string
}

func (e *InvalidFilterValueError) Error() string {
	if e.Operator == "" {
		return fmt.Sprintf("invalid filter value for '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid value for %s filter on '%s': %s", e.Operator, e.Field, e.Reason)
}

func (e *InvalidFilterValueError) Is(target error) bool {
	return target == ErrInvalidFilterValue
}

// TypeCoercionError reports a value that cannot be coerced into Target.
type TypeCoercionError struct {
	Value  any
	Target string
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("not possible to coerce [%v] from %T into %s", e.Value, e.Value, e.Target)
}

func (e *TypeCoercionError) Is(target error) bool {
	return target == ErrTypeCoercion
}

// ParseError reports malformed numeric text.
type ParseError struct {
	Input  string
	Target string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q as %s: %v", e.Input, e.Target, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
