// Package gateway drives the provider failover loop for one completion
// request. Attempts are strictly sequential; speculative parallel calls
// would double-bill upstream quota.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nghyane/llm-relay/internal/logging"
	"github.com/nghyane/llm-relay/internal/registry"
	"github.com/nghyane/llm-relay/internal/translator"
)

const defaultAttemptTimeout = 10 * time.Second

// EndpointResolver maps a provider to its request URL. Tests swap this to
// point attempts at local fakes.
type EndpointResolver func(p registry.Provider, accountID string) string

// Orchestrator executes a chat completion against an ordered candidate
// list, failing over on retryable errors.
type Orchestrator struct {
	client         *http.Client
	creds          registry.CredentialSource
	accountID      string
	attemptTimeout time.Duration
	endpoint       EndpointResolver
	now            func() time.Time
}

// OrchestratorOption customises orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithHTTPClient injects the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.client = c }
}

// WithAttemptTimeout bounds each individual provider call.
func WithAttemptTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithEndpointResolver overrides provider URL resolution.
func WithEndpointResolver(r EndpointResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.endpoint = r }
}

// WithNow injects the clock used for synthesized response timestamps.
func WithNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator builds an orchestrator reading credentials from creds.
// accountID substitutes account-scoped endpoint placeholders.
func NewOrchestrator(creds registry.CredentialSource, accountID string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:         &http.Client{},
		creds:          creds,
		accountID:      accountID,
		attemptTimeout: defaultAttemptTimeout,
		endpoint:       registry.EndpointURL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is one completion to execute.
type Request struct {
	// RawBody is the caller's original JSON body, forwarded (with the
	// model rewritten) to wire-compatible providers.
	RawBody []byte

	// Parsed is the decoded request, used for validation and for
	// providers needing a full re-encode.
	Parsed *translator.ChatCompletionRequest
}

// Outcome is a successful completion. Exactly one of Body and Stream is
// set: Body for normalized JSON responses, Stream for SSE passthrough.
type Outcome struct {
	Provider    registry.Provider
	Model       string
	ContentType string
	Body        []byte
	Stream      io.ReadCloser
}

// Candidates orders providers for a request: the requested model's native
// provider first, then the credentialed priority list, de-duplicated.
func Candidates(requestedModel string, creds registry.CredentialSource) []registry.Provider {
	native := registry.ResolveProvider(requestedModel)
	candidates := []registry.Provider{native}
	for _, p := range registry.AvailableProviders(creds) {
		if p != native {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

// Execute runs the failover loop. It returns an Outcome on success, a
// *TerminalError when a provider's 4xx should pass through verbatim, and
// an *ExhaustedError when every candidate fails retryably.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	isVirtual := registry.IsVirtualModel(req.Parsed.Model)
	candidates := Candidates(req.Parsed.Model, o.creds)

	attempts := 0
	credentialed := 0
	streamSkipped := 0
	lastCause := ""
	for _, p := range candidates {
		cred := o.creds.Credential(p)
		if cred == "" {
			logging.WithField("provider", p).Debug("skipping provider without credential")
			continue
		}
		credentialed++
		if req.Parsed.Stream && !registry.SupportsStreaming(p) {
			streamSkipped++
			logging.WithField("provider", p).Debug("skipping provider without streaming support")
			continue
		}

		attempts++
		outcome, retryCause, terminal := o.attempt(ctx, p, cred, req, isVirtual)
		if terminal != nil {
			return nil, terminal
		}
		if outcome != nil {
			return outcome, nil
		}
		lastCause = retryCause
		logging.WithField("provider", p).Warnf("provider attempt failed: %s", retryCause)
	}

	if attempts == 0 {
		if credentialed == 0 {
			return nil, ErrNoProviders
		}
		if streamSkipped > 0 {
			return nil, ErrStreamNotSupported
		}
	}
	return nil, &ExhaustedError{Attempts: attempts, LastCause: lastCause}
}

// attempt issues a single provider call. It returns exactly one of:
// a successful outcome, a retryable cause, or a terminal error.
func (o *Orchestrator) attempt(ctx context.Context, p registry.Provider, cred string, req *Request, isVirtual bool) (*Outcome, string, error) {
	model := registry.ModelForProvider(req.Parsed.Model, p, isVirtual)

	var body []byte
	var err error
	if p == registry.ProviderCohere {
		body, err = translator.ToCohere(req.Parsed, model)
	} else {
		body, err = translator.OpenAIBody(req.RawBody, model, req.Parsed.Stream)
	}
	if err != nil {
		return nil, fmt.Sprintf("build request for %s: %v", p, err), nil
	}

	// A deadline on a streaming attempt would sever healthy streams longer
	// than the timeout, so for streams the timer bounds only the connect
	// and header phase and is disarmed once the response arrives.
	streaming := req.Parsed.Stream
	var attemptCtx context.Context
	var cancel context.CancelFunc
	var headerTimer *time.Timer
	if streaming {
		attemptCtx, cancel = context.WithCancel(ctx)
		headerTimer = time.AfterFunc(o.attemptTimeout, cancel)
	} else {
		attemptCtx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, o.endpoint(p, o.accountID), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Sprintf("build request for %s: %v", p, err), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	desc, _ := registry.GetDescriptor(p)
	httpReq.Header.Set(desc.AuthHeaderName, desc.AuthHeaderPrefix+cred)

	resp, err := o.client.Do(httpReq)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		cancel()
		return nil, fmt.Sprintf("%s: %v", p, err), nil
	}

	switch classifyStatus(resp.StatusCode) {
	case classSuccess:
		if streaming {
			return &Outcome{
				Provider:    p,
				Model:       model,
				ContentType: resp.Header.Get("Content-Type"),
				Stream:      &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
			}, "", nil
		}
		defer cancel()
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Sprintf("%s: read response: %v", p, err), nil
		}
		if p == registry.ProviderCohere {
			raw, err = translator.FromCohere(raw, model, o.now())
			if err != nil {
				return nil, fmt.Sprintf("%s: normalize response: %v", p, err), nil
			}
		}
		return &Outcome{Provider: p, Model: model, ContentType: "application/json", Body: raw}, "", nil

	case classTerminal:
		defer cancel()
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, "", &TerminalError{Provider: p, StatusCode: resp.StatusCode, Body: raw}

	default:
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Sprintf("%s returned status %d", p, resp.StatusCode), nil
	}
}

// cancelOnClose releases the attempt context when the streamed body is
// closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
