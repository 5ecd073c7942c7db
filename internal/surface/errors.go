package surface

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/moonbridge/internal/native"
)

var (
	// ErrNilClass is returned when Resolve is called without a class.
	ErrNilClass = errors.New("surface: nil class")
	// ErrSurfaceClosed is returned by operations on a closed Surface.
	ErrSurfaceClosed = errors.New("surface: closed")
	// ErrSurfaceFailed is returned once a native registration has failed;
	// the surface refuses further registrations.
	ErrSurfaceFailed = errors.New("surface: failed")
	// ErrNativeRegistration marks a failed native registration call.
	ErrNativeRegistration = errors.New("surface: native registration failed")
	// ErrInheritanceCycle is returned when a class is its own ancestor.
	ErrInheritanceCycle = errors.New("surface: inheritance cycle")
	// ErrDuplicateName is returned when a class shares its full name with a
	// different, already registered class. The surface stays usable.
	ErrDuplicateName = errors.New("surface: another class is registered under this name")
	// ErrNotRegistered is returned by lookups for unknown classes.
	ErrNotRegistered = errors.New("surface: class not registered")
)

// RegistrationError describes a failed native registration.
type RegistrationError struct {
	Class  string
	Parent native.TypeHandle
	Handle native.TypeHandle
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("surface: register %s (parent %d): %v", e.Class, e.Parent, e.Err)
	}
	return fmt.Sprintf("surface: register %s (parent %d): engine returned handle %d", e.Class, e.Parent, e.Handle)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func (e *RegistrationError) Is(target error) bool {
	return target == ErrNativeRegistration
}
