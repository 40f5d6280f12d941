package llm

import "errors"

// Errors returned by the client and providers. ErrInvalidResponse,
// ErrContentBlocked and ErrInvalidRequest are permanent and never retried.
var (
	ErrProviderNotFound = errors.New("llm provider not registered")
	ErrInvalidConfig    = errors.New("invalid llm configuration")
	ErrInvalidRequest   = errors.New("llm request rejected")
	ErrInvalidResponse  = errors.New("invalid response from language model")
	ErrContentBlocked   = errors.New("content blocked by language model safety filters")
	ErrTransientFailure = errors.New("transient language model failure")
)

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrProviderNotFound)
}
