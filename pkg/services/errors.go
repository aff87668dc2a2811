package services

import (
	"errors"
	"fmt"

	"friction-intel-api/pkg/llm"
)

// Error kinds surfaced by the friction pipeline. Handlers map these to HTTP
// statuses; callers use them to tell a config problem from a degraded service.
var (
	// ErrConfiguration means the classification service rejected our
	// credentials or none are configured. Fatal, never retried.
	ErrConfiguration = errors.New("classification service is not configured correctly")

	// ErrTransientService means the classification service was rate limiting
	// or overloaded and retries were exhausted.
	ErrTransientService = errors.New("classification service is degraded")

	// ErrParse means the classifier response held no usable verdict.
	ErrParse = errors.New("classifier response could not be parsed")

	// ErrPersistence wraps store failures surfaced to the caller.
	ErrPersistence = errors.New("persistence failure")

	// ErrAccountBusy means another batch or scoring run holds the account's
	// single-flight lock.
	ErrAccountBusy = errors.New("account is already being processed")
)

// classifyLLMError folds an error from the llm client into the taxonomy.
// Unknown errors (network, decode) are treated as transient.
func classifyLLMError(err error) error {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.AuthFailure() {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if apiErr.Retryable() {
			return fmt.Errorf("%w: %v", ErrTransientService, err)
		}
		// Other 4xx responses: our request was malformed for this case.
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return fmt.Errorf("%w: %v", ErrTransientService, err)
}

// isRetryable reports whether a classified error is worth a backoff retry.
func isRetryable(err error) bool {
	return errors.Is(err, ErrTransientService)
}
