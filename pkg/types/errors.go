package types

import "errors"

// Schema-related errors
var (
	// ErrUnknownType is returned when a type name cannot be parsed
	ErrUnknownType = errors.New("unknown type")

	// ErrFieldNotFound is returned when a field name does not resolve against a schema
	ErrFieldNotFound = errors.New("field not found")

	// ErrInvalidValue is returned when a value cannot be converted to a field type
	ErrInvalidValue = errors.New("invalid value for type")
)
