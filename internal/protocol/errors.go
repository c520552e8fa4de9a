package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedDefinition = errors.New("protocol: malformed definition")
	ErrDuplicateKey        = errors.New("protocol: duplicate key")
	ErrNotFound            = errors.New("protocol: not found")
	ErrFieldFormat         = errors.New("protocol: field format")
	ErrIncompleteData      = errors.New("protocol: incomplete data")
)

// DefinitionError reports a catalog row that cannot become a definition.
type DefinitionError struct {
	Row    string
	Column string
	Reason string
}

func (e DefinitionError) Error() string {
	switch {
	case e.Row == "" && e.Column == "":
		return fmt.Sprintf("protocol: malformed definition: %s", e.Reason)
	case e.Column == "":
		return fmt.Sprintf("protocol: malformed definition %s: %s", e.Row, e.Reason)
	case e.Row == "":
		return fmt.Sprintf("protocol: malformed definition column=%s: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("protocol: malformed definition %s column=%s: %s", e.Row, e.Column, e.Reason)
}

func (e DefinitionError) Unwrap() error { return ErrMalformedDefinition }

// FieldError identifies the field whose value could not be converted.
type FieldError struct {
	Field  string
	Part   string
	Reason string
}

func (e FieldError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("protocol: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("protocol: field %q part=%s: %s", e.Field, e.Part, e.Reason)
}

func (e FieldError) Unwrap() error { return ErrFieldFormat }

// DuplicateError names the identity that was already registered.
type DuplicateError struct {
	Identity string
	Key      uint64
}

func (e DuplicateError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("protocol: duplicate key: %s", e.Identity)
	}
	return fmt.Sprintf("protocol: duplicate key: %016x", e.Key)
}

func (e DuplicateError) Unwrap() error { return ErrDuplicateKey }
