package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass tells callers how to react to an error
type ErrorClass int

const (
	// ErrorTransient may succeed if retried later
	ErrorTransient ErrorClass = iota
	// ErrorInvalid is caused by bad input or configuration
	ErrorInvalid
	// ErrorFatal is unrecoverable and reported as an internal failure
	ErrorFatal
	// ErrorConflict violates a uniqueness constraint
	ErrorConflict
	// ErrorNotFound refers to an entity that does not exist or is not in the
	// required state
	ErrorNotFound
)

// String returns the lower-case class name used in logs and metric labels
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	case ErrorConflict:
		return "conflict"
	case ErrorNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels shared across packages
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrNoConnection   = errors.New("no connection available")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
)

// sentinelClasses classifies bare errors that were never wrapped with a class
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrNoConnection, ErrorTransient},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
}

// ClassifiedError carries a class and the component context of a failure
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error returns Message when set, otherwise the wrapped error text
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the wrapped error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the class of the outermost ClassifiedError in err's chain,
// falling back to the known sentinels. Anything else is fatal.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class
		}
	}
	return ErrorFatal
}

func is(err error, class ErrorClass) bool {
	return err != nil && Classify(err) == class
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool { return is(err, ErrorTransient) }

// IsInvalid reports whether err was caused by invalid input
func IsInvalid(err error) bool { return is(err, ErrorInvalid) }

// IsFatal reports whether err is unrecoverable. Unclassified errors are fatal.
func IsFatal(err error) bool { return is(err, ErrorFatal) }

// IsConflict reports whether err is a uniqueness violation
func IsConflict(err error) bool { return is(err, ErrorConflict) }

// IsNotFound reports whether err refers to a missing entity
func IsNotFound(err error) bool { return is(err, ErrorNotFound) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Wrap adds component context without changing the class:
// "component.method: action failed: err"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err as transient
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err as fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err as invalid input
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}

// WrapConflict wraps err as a uniqueness conflict
func WrapConflict(err error, component, method, action string) error {
	return wrapClassified(ErrorConflict, err, component, method, action)
}

// WrapNotFound wraps err as a missing entity
func WrapNotFound(err error, component, method, action string) error {
	return wrapClassified(ErrorNotFound, err, component, method, action)
}

// Root returns the innermost error of a chain. Operation results expose it as
// the human-readable message while the chain keeps component context for logs.
func Root(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
