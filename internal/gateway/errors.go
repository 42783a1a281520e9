package gateway

import (
	"errors"
	"fmt"

	"github.com/nghyane/llm-relay/internal/registry"
)

// ErrNoProviders indicates that no provider credential is configured at all.
var ErrNoProviders = errors.New("no provider credentials configured")

// ErrStreamNotSupported indicates that every credentialed candidate was
// skipped because it cannot serve server-sent events.
var ErrStreamNotSupported = errors.New("no available provider supports streaming for this request")

// TerminalError carries an upstream 4xx that reflects a problem with the
// request itself. It is passed through instead of masked by failover.
type TerminalError struct {
	Provider   registry.Provider
	StatusCode int
	Body       []byte
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("provider %s rejected the request with status %d", e.Provider, e.StatusCode)
}

// ExhaustedError is returned when every candidate failed with a retryable
// condition. LastCause names the final failure for diagnosis.
type ExhaustedError struct {
	Attempts  int
	LastCause string
}

func (e *ExhaustedError) Error() string {
	if e.LastCause == "" {
		return fmt.Sprintf("all %d providers failed", e.Attempts)
	}
	return fmt.Sprintf("all %d providers failed, last error: %s", e.Attempts, e.LastCause)
}
