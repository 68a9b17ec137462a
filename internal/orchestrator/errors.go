package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProvider is returned by Quota for a name that matches no registered provider
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrAllProvidersFailed matches any *AllProvidersFailedError via errors.Is
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrCircuitOpen marks a provider skipped for too many consecutive errors
	ErrCircuitOpen = errors.New("circuit open")

	// ErrQuotaExhausted marks a provider skipped because its daily quota is used up
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrNotConfigured marks a provider skipped because it has no credentials
	ErrNotConfigured = errors.New("provider not configured")
)

// ProviderAttempt records what happened to one provider during a completion
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Skipped  bool   `json:"skipped"`
	Err      error  `json:"-"`
}

// AllProvidersFailedError is returned when no provider produced a completion.
// Attempts holds one entry per provider, in priority order.
type AllProvidersFailedError struct {
	Attempts []ProviderAttempt
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed: no providers registered"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
