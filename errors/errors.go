// Package errors provides the error classes and wrapping helpers used by the
// sampler packages.  Every error returned from a fit can be classified as
// invalid input, structurally infeasible, or numerically degenerate, so that
// callers can decide whether to change the configuration, the prior, or the
// emission model.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorInvalid represents errors due to invalid input or configuration.
	ErrorInvalid ErrorClass = iota
	// ErrorInfeasible represents a data/model combination that cannot be
	// sampled, such as a disconnected count matrix under reversibility.
	ErrorInfeasible
	// ErrorNumerical represents numerical degeneracy, such as an observation
	// that is impossible under every state.
	ErrorNumerical
	// ErrorFatal represents any other unrecoverable error.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorInvalid:
		return "invalid"
	case ErrorInfeasible:
		return "infeasible"
	case ErrorNumerical:
		return "numerical"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables.
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrEmptyInput     = errors.New("no observations")
	ErrShortSequence  = errors.New("observation sequence too short")
	ErrBadObservation = errors.New("observation not supported by the output model")
	ErrDisconnected   = errors.New("count matrix is disconnected")
	ErrZeroLikelihood = errors.New("observation has zero likelihood under every state")
	ErrCallback       = errors.New("callback failed")
	ErrNotConverged   = errors.New("iteration did not converge")
)

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is, As, New and Join are re-exported so that importers do not need both
// this package and the standard library errors package.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// WrapInvalid wraps an error as invalid input or configuration.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ErrorInvalid, err, component, method, action)
}

// WrapInfeasible wraps an error as structurally infeasible.
func WrapInfeasible(err error, component, method, action string) error {
	return wrapClass(ErrorInfeasible, err, component, method, action)
}

// WrapNumerical wraps an error as numerically degenerate.
func WrapNumerical(err error, component, method, action string) error {
	return wrapClass(ErrorNumerical, err, component, method, action)
}

// WrapFatal wraps an error as fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}

// Invalidf returns an invalid-configuration error with a formatted detail
// message.  The result matches ErrInvalidConfig under errors.Is.
func Invalidf(component, method, format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	return &ClassifiedError{
		Class:     ErrorInvalid,
		Err:       fmt.Errorf("%s.%s: %w", component, method, err),
		Component: component,
		Operation: method,
	}
}

// Classify returns the class of err.  Unclassified errors are matched
// against the sentinels and otherwise reported as fatal.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrEmptyInput), errors.Is(err, ErrShortSequence),
		errors.Is(err, ErrBadObservation):
		return ErrorInvalid
	case errors.Is(err, ErrDisconnected):
		return ErrorInfeasible
	case errors.Is(err, ErrZeroLikelihood):
		return ErrorNumerical
	}

	return ErrorFatal
}

// IsInvalid checks if an error is due to invalid input or configuration.
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// IsInfeasible checks if an error signals a structurally infeasible problem.
func IsInfeasible(err error) bool {
	return err != nil && Classify(err) == ErrorInfeasible
}

// IsNumerical checks if an error signals numerical degeneracy.
func IsNumerical(err error) bool {
	return err != nil && Classify(err) == ErrorNumerical
}
