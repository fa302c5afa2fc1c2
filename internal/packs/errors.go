// ABOUTME: Errors raised while registering packs and routing operation calls.
// ABOUTME: UnknownOperation and InvalidArguments are reported to callers as failed results.

package packs

import (
	"errors"
	"fmt"
)

// ErrPackAlreadyRegistered indicates a pack for the same domain is already registered.
var ErrPackAlreadyRegistered = errors.New("pack already registered")

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrPrefixOverlap indicates a pack prefix is not disjoint from an existing name space.
var ErrPrefixOverlap = errors.New("tool prefix overlap")

// ErrToolOutsidePrefix indicates a tool name does not start with its pack's prefix.
var ErrToolOutsidePrefix = errors.New("tool name outside pack prefix")

// UnknownOperationError is returned for a name no navigation operation or pack owns.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q: select a domain with qbo_select_domain to see available operations", e.Name)
}

// InvalidArgumentsError names the argument that failed validation.
type InvalidArgumentsError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments: %s %s", e.Field, e.Reason)
}

// Missing is shorthand for a required argument that was not supplied.
func Missing(field string) *InvalidArgumentsError {
	return &InvalidArgumentsError{Field: field, Reason: "is required"}
}
