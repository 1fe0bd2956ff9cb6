package graphql

import (
	"context"
	stderrors "errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/semblog/errors"
)

// Error codes reported in extensions.code
const (
	CodeValidation  = "VALIDATION"
	CodeConflict    = "CONFLICT"
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL"
	CodeRateLimited = "RATE_LIMITED"
)

// Gateway errors
var (
	ErrIntrospectionDisabled = stderrors.New("introspection is not supported")
	ErrRateLimited           = stderrors.New("rate limit exceeded")
)

// errorCode maps an error class to its extensions.code
func errorCode(err error) string {
	switch errors.Classify(err) {
	case errors.ErrorInvalid:
		return CodeValidation
	case errors.ErrorConflict:
		return CodeConflict
	case errors.ErrorNotFound:
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// describe returns the client-facing message and extensions of a resolver
// error. The message is the innermost error text; fatal errors are masked.
func describe(err error) (string, map[string]interface{}) {
	ext := map[string]interface{}{
		"code": errorCode(err),
	}

	message := errors.Root(err).Error()
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		message = "operation timeout exceeded"
		ext["retryable"] = true
	case stderrors.Is(err, context.Canceled):
		message = "operation cancelled"
	case errors.Classify(err) == errors.ErrorTransient:
		ext["retryable"] = true
	case errors.Classify(err) == errors.ErrorFatal:
		message = "internal server error"
	}
	return message, ext
}

// mapError converts an error raised outside field resolution into a GraphQL
// error located at path
func mapError(err error, path ast.Path, operation string) *gqlerror.Error {
	if err == nil {
		return nil
	}

	var gqlErr *gqlerror.Error
	if stderrors.As(err, &gqlErr) {
		if gqlErr.Path == nil {
			gqlErr.Path = path
		}
		return withCode(gqlErr, CodeInternal, operation)
	}

	message, ext := describe(err)
	return withCode(&gqlerror.Error{
		Err:        err,
		Message:    message,
		Path:       path,
		Extensions: ext,
	}, CodeInternal, operation)
}

// fieldError is a resolver failure in the form graphql-go reports it: Error
// is the client-facing message and Extensions carries the code.
type fieldError struct {
	err     error
	message string
	ext     map[string]interface{}
}

// fail wraps err for graphql-go; nil stays nil
func fail(err error) error {
	if err == nil {
		return nil
	}
	message, ext := describe(err)
	return &fieldError{err: err, message: message, ext: ext}
}

func (e *fieldError) Error() string { return e.message }

func (e *fieldError) Unwrap() error { return e.err }

// Extensions is read by graphql-go when it builds the response error
func (e *fieldError) Extensions() map[string]interface{} { return e.ext }

// validationErrors tags parser and validator errors with the VALIDATION code
func validationErrors(list gqlerror.List, operation string) gqlerror.List {
	for _, e := range list {
		withCode(e, CodeValidation, operation)
	}
	return list
}

func validationError(operation, format string, args ...interface{}) *gqlerror.Error {
	return withCode(gqlerror.Errorf(format, args...), CodeValidation, operation)
}

// withCode sets extensions.code unless the error already carries one
func withCode(e *gqlerror.Error, code, operation string) *gqlerror.Error {
	if e.Extensions == nil {
		e.Extensions = map[string]interface{}{}
	}
	if _, ok := e.Extensions["code"]; !ok {
		e.Extensions["code"] = code
	}
	if operation != "" {
		if _, ok := e.Extensions["operation"]; !ok {
			e.Extensions["operation"] = operation
		}
	}
	return e
}
