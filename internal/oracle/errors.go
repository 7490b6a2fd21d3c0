package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a rate-limited or quota-exceeded call that may
	// succeed when retried.
	ErrTransient = errors.New("oracle: transient failure")

	// ErrFailed is returned for permanent failures and for transient ones
	// that exhausted their retries.
	ErrFailed = errors.New("oracle: call failed")

	// ErrInvalidResponse is returned when the model's answer does not parse
	// into the expected result. It is a kind of ErrFailed.
	ErrInvalidResponse = fmt.Errorf("%w: invalid model response", ErrFailed)

	// ErrNotConfigured is returned by the disabled oracle.
	ErrNotConfigured = fmt.Errorf("%w: oracle not configured", ErrFailed)
)
