// Package registry holds the static provider and model tables for the relay.
// Providers form a closed set fixed at compile time; an unknown provider is
// unrepresentable inside the router. Credentials are resolved at request time
// through a CredentialSource so availability can change without restarts.
package registry

import (
	"os"
	"strings"
)

// Provider identifies an upstream chat completion provider.
type Provider string

const (
	ProviderOpenRouter  Provider = "openrouter"
	ProviderCerebras    Provider = "cerebras"
	ProviderGroq        Provider = "groq"
	ProviderMistral     Provider = "mistral"
	ProviderHuggingFace Provider = "huggingface"
	ProviderNvidia      Provider = "nvidia"
	ProviderCohere      Provider = "cohere"
	ProviderGemini      Provider = "gemini"
	ProviderTogether    Provider = "together"
	ProviderOpenAI      Provider = "openai"
	ProviderCloudflare  Provider = "cloudflare"
)

// Descriptor holds the wire-level configuration for one provider.
type Descriptor struct {
	// BaseURL is the chat endpoint. It may contain an {account_id}
	// placeholder substituted from configuration.
	BaseURL string

	// CredentialEnvKey names the environment variable holding the API key.
	CredentialEnvKey string

	// AuthHeaderName is the HTTP header carrying the credential.
	AuthHeaderName string

	// AuthHeaderPrefix is prepended to the credential value.
	AuthHeaderPrefix string

	// SupportsStreaming reports whether the provider can serve SSE responses.
	SupportsStreaming bool
}

// descriptors is the immutable provider table, initialized once and never
// mutated.
var descriptors = map[Provider]Descriptor{
	ProviderOpenRouter: {
		BaseURL:           "https://openrouter.ai/api/v1/chat/completions",
		CredentialEnvKey:  "OPENROUTER_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderCerebras: {
		BaseURL:           "https://api.cerebras.ai/v1/chat/completions",
		CredentialEnvKey:  "CEREBRAS_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderGroq: {
		BaseURL:           "https://api.groq.com/openai/v1/chat/completions",
		CredentialEnvKey:  "GROQ_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderMistral: {
		BaseURL:           "https://api.mistral.ai/v1/chat/completions",
		CredentialEnvKey:  "MISTRAL_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderHuggingFace: {
		BaseURL:           "https://router.huggingface.co/v1/chat/completions",
		CredentialEnvKey:  "HUGGINGFACE_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderNvidia: {
		BaseURL:           "https://integrate.api.nvidia.com/v1/chat/completions",
		CredentialEnvKey:  "NVIDIA_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderCohere: {
		// Cohere's v1 chat endpoint uses its own request shape and does
		// not support OpenAI-style SSE streaming.
		BaseURL:           "https://api.cohere.ai/v1/chat",
		CredentialEnvKey:  "COHERE_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: false,
	},
	ProviderGemini: {
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta/chat/completions",
		CredentialEnvKey:  "GEMINI_API_KEY",
		AuthHeaderName:    "x-goog-api-key",
		AuthHeaderPrefix:  "",
		SupportsStreaming: true,
	},
	ProviderTogether: {
		BaseURL:           "https://api.together.xyz/v1/chat/completions",
		CredentialEnvKey:  "TOGETHER_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderOpenAI: {
		BaseURL:           "https://api.openai.com/v1/chat/completions",
		CredentialEnvKey:  "OPENAI_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
	ProviderCloudflare: {
		BaseURL:           "https://api.cloudflare.com/client/v4/accounts/{account_id}/ai/run/",
		CredentialEnvKey:  "CLOUDFLARE_API_KEY",
		AuthHeaderName:    "Authorization",
		AuthHeaderPrefix:  "Bearer ",
		SupportsStreaming: true,
	},
}

// accountIDPlaceholder is replaced in account-scoped base URLs.
const accountIDPlaceholder = "{account_id}"

// GetDescriptor returns the descriptor for the provider. The second return
// value is false for providers outside the closed set; callers inside the
// router never hit that path.
func GetDescriptor(p Provider) (Descriptor, bool) {
	d, ok := descriptors[p]
	return d, ok
}

// EndpointURL resolves the provider's request URL, substituting the account
// id placeholder when the base URL requires one.
func EndpointURL(p Provider, accountID string) string {
	d, ok := descriptors[p]
	if !ok {
		return ""
	}
	if strings.Contains(d.BaseURL, accountIDPlaceholder) && accountID != "" {
		return strings.ReplaceAll(d.BaseURL, accountIDPlaceholder, accountID)
	}
	return d.BaseURL
}

// SupportsStreaming reports whether the provider can serve streamed responses.
func SupportsStreaming(p Provider) bool {
	d, ok := descriptors[p]
	return ok && d.SupportsStreaming
}

// CredentialSource resolves provider credentials. Implementations must treat
// an empty string as "no credential".
type CredentialSource interface {
	Credential(p Provider) string
}

// EnvCredentials resolves credentials from process environment variables,
// one variable per provider.
type EnvCredentials struct{}

// Credential returns the trimmed credential for the provider, or empty when
// unset.
func (EnvCredentials) Credential(p Provider) string {
	d, ok := descriptors[p]
	if !ok {
		return ""
	}
	return strings.TrimSpace(os.Getenv(d.CredentialEnvKey))
}

// StaticCredentials is a fixed credential map, used in tests and for
// self-keyed callers.
type StaticCredentials map[Provider]string

func (s StaticCredentials) Credential(p Provider) string {
	return strings.TrimSpace(s[p])
}
