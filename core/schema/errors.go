package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProperty is matched by every UnknownPropertyError.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrSchemaMetadataUnavailable is matched by every SchemaMetadataUnavailableError.
	ErrSchemaMetadataUnavailable = errors.New("schema metadata unavailable")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// UnknownPropertyError is returned when an entity has no such logical property.
type UnknownPropertyError struct {
	Entity   string
	Property string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("property '%s' not found in schema '%s'", e.Property, e.Entity)
}

func (e *UnknownPropertyError) Is(target error) bool {
	return target == ErrUnknownProperty
}

// SchemaMetadataUnavailableError is returned when no metadata was ever
// registered for an entity type.
type SchemaMetadataUnavailableError struct {
	Entity string
}

func (e *SchemaMetadataUnavailableError) Error() string {
	return fmt.Sprintf("no schema registered for entity '%s'", e.Entity)
}

func (e *SchemaMetadataUnavailableError) Is(target error) bool {
	return target == ErrSchemaMetadataUnavailable
}
