// Package errors provides standardized error handling for protosignal.
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, never retried) and Fatal (unrecoverable). Every codec failure
// unwraps to one of the codec sentinels (ErrTypeMismatch, ErrInvalidInput,
// ErrUnexpectedField, ErrUnknownEnumSymbol, ErrNotAMessage, ErrUnknownType),
// so callers can match on the failure kind with errors.Is and the classifier
// reports them as Invalid:
//
//	msg, err := builder.Build(mt, value)
//	if errors.Is(err, errors.ErrUnknownEnumSymbol) {
//	    // the caller supplied a symbol the schema does not know
//	}
//
// Transport code wraps third-party errors with component context:
//
//	if err := client.Publish(ctx, subject, data); err != nil {
//	    return errors.WrapTransient(err, "Publisher", "forward", "publish envelope")
//	}
//
// RetryConfig converts to pkg/retry for exponential backoff of transient failures.
package errors
