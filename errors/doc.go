// Package errors provides standardized error handling patterns for semblog components.
//
// # Error Classification
//
// Every error that leaves a component carries one of five classes:
//
//   - Invalid: malformed or missing arguments, bad configuration
//   - Conflict: a uniqueness constraint would be violated (duplicate email)
//   - NotFound: a referenced entity does not exist, or is not in the required state
//   - Transient: timeouts, cancellation, a missing connection
//   - Fatal: unrecoverable states
//
// Errors without a ClassifiedError in their chain are classified by the
// sentinels they wrap (context errors and ErrNoConnection are transient,
// configuration sentinels fatal); everything else is fatal.
//
// The GraphQL gateway maps the class to the `extensions.code` of the response
// error, so callers can distinguish a conflict from a missing reference without
// matching on message text.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Classification-aware wrappers set the class while keeping the chain intact:
//
//	errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "CreatePost", "author lookup")
//	errors.WrapConflict(graph.ErrEmailTaken, "Resolver", "CreateUser", "email check")
//
// The generic Wrap() preserves whatever class the wrapped error already has:
//
//	errors.Wrap(err, "Executor", "Execute", "resolve field")
//
// Root returns the innermost error, which is what operation results show to
// clients ("user not found") while logs keep the full chain.
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    logger.Warn("operation failed", "component", ce.Component, "class", ce.Class)
//	}
//
//	if errors.Is(err, graph.ErrPostNotFound) {
//	    // comment target missing or unpublished
//	}
package errors
