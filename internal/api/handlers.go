package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nghyane/llm-relay/internal/gateway"
	"github.com/nghyane/llm-relay/internal/json"
	"github.com/nghyane/llm-relay/internal/logging"
	"github.com/nghyane/llm-relay/internal/quota"
	"github.com/nghyane/llm-relay/internal/ratelimit"
	"github.com/nghyane/llm-relay/internal/registry"
	"github.com/nghyane/llm-relay/internal/translator"
)

// maxRequestBody caps inbound completion bodies at 1 MiB.
const maxRequestBody = 1 << 20

// handleChatCompletion is the main proxy path. Order matters: rate limit,
// input validation, quota, then the provider failover loop. Quota is
// consumed only after a successful completion.
func (s *Server) handleChatCompletion(c *gin.Context) {
	identifier := ratelimit.ClientIdentifier(c.Request)
	decision := s.limiter.Check(identifier)
	for k, v := range ratelimit.Headers(decision, s.limiter.Limit(), time.Now()) {
		c.Header(k, v)
	}
	if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, errorBody("rate limit exceeded, try again later", errTypeRateLimit))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("could not read request body", errTypeInvalidRequest))
		return
	}

	var req translator.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("request body is not valid JSON", errTypeInvalidRequest))
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		c.JSON(http.StatusBadRequest, errorBody("model is required", errTypeInvalidRequest))
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, errorBody("messages must not be empty", errTypeInvalidRequest))
		return
	}
	if req.Stream {
		native := registry.ResolveProvider(req.Model)
		if !registry.SupportsStreaming(native) {
			c.JSON(http.StatusBadRequest, errorBody(
				"streaming is not supported for model "+req.Model, errTypeInvalidRequest))
			return
		}
	}

	byok := c.GetHeader(headerByok) != ""
	caller := c.GetHeader(headerCaller)
	if caller == "" {
		// Anonymous callers are metered by the same key the rate
		// limiter uses.
		caller = identifier
	}
	feature := c.GetHeader(headerFeature)
	if !byok {
		if err := s.gate.BeforeRequest(c.Request.Context(), caller, feature); err != nil {
			var exceeded *quota.ExceededError
			if errors.As(err, &exceeded) {
				c.JSON(http.StatusTooManyRequests, errorBody(exceeded.Error(), errTypeQuotaExceeded))
				return
			}
			// Quota storage trouble must not take the proxy down.
			logging.WithError(err).Error("quota check failed, allowing request")
		}
	}

	if len(registry.AvailableProviders(s.creds)) == 0 {
		c.JSON(http.StatusInternalServerError, errorBody("no providers configured", errTypeServer))
		return
	}

	outcome, err := s.orchestrator.Execute(c.Request.Context(), &gateway.Request{
		RawBody: raw,
		Parsed:  &req,
	})
	if err != nil {
		var terminal *gateway.TerminalError
		if errors.As(err, &terminal) {
			c.Header("X-Provider", string(terminal.Provider))
			c.Data(http.StatusBadGateway, "application/json", terminal.Body)
			return
		}
		if errors.Is(err, gateway.ErrStreamNotSupported) {
			c.JSON(http.StatusBadRequest, errorBody(err.Error(), errTypeInvalidRequest))
			return
		}
		var exhausted *gateway.ExhaustedError
		if errors.As(err, &exhausted) {
			c.JSON(http.StatusInternalServerError, errorBody(exhausted.Error(), errTypeUpstream))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error(), errTypeServer))
		return
	}

	c.Header("X-Provider", string(outcome.Provider))
	c.Header("X-Model", outcome.Model)

	if outcome.Stream != nil {
		defer outcome.Stream.Close()
		contentType := outcome.ContentType
		if contentType == "" {
			contentType = "text/event-stream"
		}
		c.Header("Content-Type", contentType)
		c.Header("Cache-Control", "no-cache")
		c.Status(http.StatusOK)
		flushCopy(c.Writer, outcome.Stream)
	} else {
		c.Data(http.StatusOK, outcome.ContentType, outcome.Body)
	}

	if !byok {
		if err := s.gate.AfterSuccess(c.Request.Context(), caller, feature); err != nil {
			logging.WithError(err).Error("usage metering failed")
		}
	}
}

// flushCopy relays an upstream SSE body chunk by chunk so tokens reach the
// client as they arrive.
func flushCopy(w gin.ResponseWriter, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			w.Flush()
		}
		if err != nil {
			if err != io.EOF {
				logging.WithError(err).Warn("upstream stream ended early")
			}
			return
		}
	}
}

// handleModels lists the static catalog in the OpenAI model list shape.
func (s *Server) handleModels(c *gin.Context) {
	entries := registry.Catalog()
	models := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		models = append(models, gin.H{
			"id":       e.ModelID,
			"object":   "model",
			"owned_by": string(e.Owner),
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": models})
}
