// Package errs classifies the failures raised by the analysis packages.
//
// Every error produced by graph construction, pruning and partitioning is
// either Invalid (the caller passed data that violates a graph invariant),
// Unsupported (a parameter names a null model, method or layout that does
// not exist) or Degenerate (the input is valid but too small to analyse).
// Degenerate inputs are normally answered with an empty result; the class
// exists so callers that request strict behaviour can tell them apart.
//
// Wrapped errors follow the pattern "component.method: action: cause" and
// remain matchable with errors.Is against the class sentinels:
//
//	if errors.Is(err, errs.ErrInvalidInput) {
//	    // reject the request
//	}
package errs

import (
	"errors"
	"fmt"
)

// Class is the classification of an analysis error.
type Class int

const (
	// ClassInvalid marks input that violates a graph invariant.
	ClassInvalid Class = iota
	// ClassUnsupported marks an unknown parameter value.
	ClassUnsupported
	// ClassDegenerate marks valid input with nothing to analyse.
	ClassDegenerate
)

// String returns the string representation of Class
func (c Class) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassUnsupported:
		return "unsupported"
	case ClassDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Class sentinels. Any *Error of the same class matches them via errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedParameter = errors.New("unsupported parameter")
	ErrDegenerateInput      = errors.New("degenerate input")
)

// Error is a classified error with the location it was raised from.
type Error struct {
	Class     Class
	Component string
	Method    string
	Action    string
	Err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Component, e.Method, e.Action)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Method, e.Action, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's class.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Class == ClassInvalid
	case ErrUnsupportedParameter:
		return e.Class == ClassUnsupported
	case ErrDegenerateInput:
		return e.Class == ClassDegenerate
	}
	return false
}

// Invalid creates an invalid-input error with a formatted cause.
func Invalid(component, method, format string, args ...any) error {
	return &Error{
		Class:     ClassInvalid,
		Component: component,
		Method:    method,
		Action:    "invalid input",
		Err:       fmt.Errorf(format, args...),
	}
}

// Unsupported creates an unsupported-parameter error naming the rejected value.
func Unsupported(component, method, param string, value any) error {
	return &Error{
		Class:     ClassUnsupported,
		Component: component,
		Method:    method,
		Action:    "unsupported parameter",
		Err:       fmt.Errorf("%s=%v", param, value),
	}
}

// Degenerate creates a degenerate-input error.
func Degenerate(component, method, reason string) error {
	return &Error{
		Class:     ClassDegenerate,
		Component: component,
		Method:    method,
		Action:    "degenerate input",
		Err:       errors.New(reason),
	}
}

// Wrap adds component context to err and keeps its classification if it has one.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return &Error{Class: ce.Class, Component: component, Method: method, Action: action, Err: err}
	}
	return fmt.Errorf("%s.%s: %s: %w", component, method, action, err)
}

// WrapInvalid wraps err as an invalid-input error.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassInvalid, Component: component, Method: method, Action: action, Err: err}
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidInput)
}

// IsUnsupported checks if an error names an unsupported parameter
func IsUnsupported(err error) bool {
	return err != nil && errors.Is(err, ErrUnsupportedParameter)
}

// IsDegenerate checks if an error reports a degenerate input
func IsDegenerate(err error) bool {
	return err != nil && errors.Is(err, ErrDegenerateInput)
}
