package registry

import (
	"sort"
	"strings"
)

// modelCatalog maps canonical model ids to their owning provider. Insertion
// order is irrelevant; ids are unique.
var modelCatalog = map[string]Provider{
	// OpenRouter models (access to OpenAI, Anthropic and others)
	"gpt-4o":          ProviderOpenRouter,
	"gpt-4o-mini":     ProviderOpenRouter,
	"gpt-4-turbo":     ProviderOpenRouter,
	"gpt-4":           ProviderOpenRouter,
	"gpt-3.5-turbo":   ProviderOpenRouter,
	"claude-3-opus":   ProviderOpenRouter,
	"claude-3-sonnet": ProviderOpenRouter,
	"claude-3-haiku":  ProviderOpenRouter,

	// Groq models
	"llama-3.3-70b-versatile": ProviderGroq,
	"llama-3.1-8b-instant":    ProviderGroq,
	"mixtral-8x7b-32768":      ProviderGroq,
	"gemma2-9b-it":            ProviderGroq,
	"llama-3.3-70b-specdec":   ProviderGroq,
	"llama-3.1-70b-versatile": ProviderGroq,

	// Together models
	"mistralai/Mixtral-8x7B-Instruct-v0.1": ProviderTogether,
	"meta-llama/Llama-3-70b-chat-hf":       ProviderTogether,
	"meta-llama/Llama-3-8b-chat-hf":        ProviderTogether,
	"Qwen/Qwen2-72B-Instruct":              ProviderTogether,

	// Gemini models
	"gemini-2.0-flash-exp": ProviderGemini,
	"gemini-1.5-pro":       ProviderGemini,
	"gemini-1.5-flash":     ProviderGemini,
	"gemini-pro":           ProviderGemini,
	"gemini-flash":         ProviderGemini,

	// Mistral models
	"mistral-large-latest":   ProviderMistral,
	"mistral-medium":         ProviderMistral,
	"mistral-small-latest":   ProviderMistral,
	"mistral-tiny":           ProviderMistral,
	"codestral-mamba-latest": ProviderMistral,
	"mistral-nemo":           ProviderMistral,
	"pixtral-12b":            ProviderMistral,
	"open-mistral-7b":        ProviderMistral,
	"open-mixtral-8x7b":      ProviderMistral,
	"open-mixtral-8x22b":     ProviderMistral,

	// Cohere models
	"command-r-plus":        ProviderCohere,
	"command-r":             ProviderCohere,
	"command":               ProviderCohere,
	"command-light":         ProviderCohere,
	"command-nightly":       ProviderCohere,
	"command-light-nightly": ProviderCohere,

	// Nvidia models
	"nvidia/llama-3.1-mini":                ProviderNvidia,
	"nvidia/llama-3.1-hf":                  ProviderNvidia,
	"meta/llama-3.1-405b-instruct":         ProviderNvidia,
	"meta/llama-3.1-405b":                  ProviderNvidia,
	"mistralai/mixtral-8x7b-instruct-v0.1": ProviderNvidia,
	"google/gemma-2-27b-it":                ProviderNvidia,

	// Hugging Face models
	"meta-llama/Llama-3.1-70B-Instruct": ProviderHuggingFace,
	"google/gemma-7b":                   ProviderHuggingFace,

	// Cerebras models
	"llama-3.3-70b": ProviderCerebras,
	"llama-3.1-70b": ProviderCerebras,
	"llama-3.1-8b":  ProviderCerebras,
	"llama-3-8b":    ProviderCerebras,
}

// defaultModelByProvider is used when a request is forced onto a provider
// that does not natively serve the requested model.
var defaultModelByProvider = map[Provider]string{
	ProviderOpenRouter:  "gpt-4o-mini",
	ProviderCerebras:    "llama-3.3-70b",
	ProviderGroq:        "llama-3.3-70b-versatile",
	ProviderMistral:     "mistral-small-latest",
	ProviderHuggingFace: "meta-llama/Llama-3.1-70B-Instruct",
	ProviderNvidia:      "nvidia/llama-3.1-mini",
	ProviderCohere:      "command-light",
	ProviderGemini:      "gemini-1.5-flash",
	ProviderTogether:    "meta-llama/Llama-3-70b-chat-hf",
	ProviderOpenAI:      "gpt-4o-mini",
	ProviderCloudflare:  "@cf/meta/llama-3.1-70b-instruct",
}

// providerPriority is the fixed failover order: free-tier friendly and fast
// providers first.
var providerPriority = []Provider{
	ProviderOpenRouter,
	ProviderCerebras,
	ProviderGroq,
	ProviderMistral,
	ProviderHuggingFace,
	ProviderNvidia,
	ProviderCohere,
	ProviderGemini,
	ProviderTogether,
	ProviderOpenAI,
}

// virtualModels are aliases not tied to any provider's catalog; they always
// resolve to the serving provider's default model.
var virtualModels = map[string]struct{}{
	"auto": {},
}

// IsVirtualModel reports whether the model id is a provider-agnostic alias.
func IsVirtualModel(model string) bool {
	_, ok := virtualModels[model]
	return ok
}

// ResolveProvider maps a model id to its owning provider. The function is
// pure and total: unknown ids fall through prefix heuristics in fixed
// priority order and finally to Cerebras.
func ResolveProvider(model string) Provider {
	if p, ok := modelCatalog[model]; ok {
		return p
	}

	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1-"), strings.HasPrefix(model, "claude"):
		return ProviderOpenRouter
	case strings.HasPrefix(model, "llama-") && !strings.Contains(model, "/"):
		return ProviderGroq
	case strings.HasPrefix(model, "mistral") && !strings.Contains(model, "/"):
		return ProviderMistral
	case strings.HasPrefix(model, "command"):
		return ProviderCohere
	case strings.HasPrefix(model, "gemini"):
		return ProviderGemini
	case strings.Contains(model, "nvidia"):
		return ProviderNvidia
	case strings.Contains(model, "/"):
		return ProviderHuggingFace
	}

	// Unknown simple names go to the fast free-tier default.
	return ProviderCerebras
}

// ModelForProvider resolves the effective model for a candidate provider.
// The requested model passes through unchanged only when the candidate is
// its native provider and the id is not a virtual alias.
func ModelForProvider(requestedModel string, candidate Provider, isVirtual bool) string {
	if !isVirtual && ResolveProvider(requestedModel) == candidate {
		return requestedModel
	}
	return defaultModelByProvider[candidate]
}

// DefaultModel returns the configured default model for the provider.
func DefaultModel(p Provider) string {
	return defaultModelByProvider[p]
}

// AvailableProviders filters the fixed priority list down to providers with
// a non-empty credential, preserving priority order.
func AvailableProviders(creds CredentialSource) []Provider {
	available := make([]Provider, 0, len(providerPriority))
	for _, p := range providerPriority {
		if creds.Credential(p) != "" {
			available = append(available, p)
		}
	}
	return available
}

// CatalogEntry is one row of the static model listing.
type CatalogEntry struct {
	ModelID string
	Owner   Provider
}

// Catalog returns every catalog model plus provider default models not
// otherwise listed, sorted by model id for stable output.
func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(modelCatalog)+len(defaultModelByProvider))
	seen := make(map[string]struct{}, len(modelCatalog))
	for id, owner := range modelCatalog {
		entries = append(entries, CatalogEntry{ModelID: id, Owner: owner})
		seen[id] = struct{}{}
	}
	for _, p := range append(append([]Provider(nil), providerPriority...), ProviderCloudflare) {
		def := defaultModelByProvider[p]
		if _, listed := seen[def]; !listed {
			entries = append(entries, CatalogEntry{ModelID: def, Owner: p})
			seen[def] = struct{}{}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ModelID < entries[j].ModelID })
	return entries
}
