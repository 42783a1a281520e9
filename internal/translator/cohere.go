package translator

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nghyane/llm-relay/internal/json"
)

// cohereMessage is one prior turn in Cohere's chat history vocabulary.
type cohereMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// cohereRequest is the Cohere v1 chat request body.
type cohereRequest struct {
	Model       string          `json:"model"`
	Message     string          `json:"message"`
	ChatHistory []cohereMessage `json:"chat_history,omitempty"`
	Preamble    string          `json:"preamble,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

// cohereRole relabels an OpenAI role into Cohere's vocabulary.
func cohereRole(role string) string {
	if role == "assistant" {
		return "CHATBOT"
	}
	return "USER"
}

// ToCohere converts an OpenAI-style request into Cohere's chat shape:
// the last non-system message becomes the outgoing message, earlier
// non-system turns become chat_history, and system messages join into the
// preamble. The preamble is omitted when no system messages exist.
func ToCohere(req *ChatCompletionRequest, effectiveModel string) ([]byte, error) {
	var systems []string
	var turns []ChatMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			systems = append(systems, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	out := cohereRequest{
		Model:       effectiveModel,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(turns) > 0 {
		out.Message = turns[len(turns)-1].Content
		for _, m := range turns[:len(turns)-1] {
			out.ChatHistory = append(out.ChatHistory, cohereMessage{
				Role:    cohereRole(m.Role),
				Message: m.Content,
			})
		}
	}
	if len(systems) > 0 {
		out.Preamble = strings.Join(systems, "\n")
	}
	return json.Marshal(out)
}

// FromCohere wraps a Cohere chat response into the OpenAI completion shape.
// The id comes from Cohere's generation_id with a generated fallback, the
// finish reason maps to "length" only when the stop reason mentions a token
// limit, and usage appears only when both token counts are present.
func FromCohere(raw []byte, modelUsed string, now time.Time) ([]byte, error) {
	body := gjson.ParseBytes(raw)

	id := body.Get("generation_id").String()
	if id == "" {
		id = uuid.NewString()
	}

	resp := ChatCompletionResponse{
		ID:      "chatcmpl-" + id,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   modelUsed,
		Choices: []Choice{{
			Index: 0,
			Message: ChatMessage{
				Role:    "assistant",
				Content: body.Get("text").String(),
			},
			FinishReason: finishReason(body.Get("finish_reason").String()),
		}},
	}

	input := body.Get("meta.billed_units.input_tokens")
	output := body.Get("meta.billed_units.output_tokens")
	if !input.Exists() || !output.Exists() {
		input = body.Get("token_count.prompt_tokens")
		output = body.Get("token_count.response_tokens")
	}
	if input.Exists() && output.Exists() {
		resp.Usage = &Usage{
			PromptTokens:     int(input.Int()),
			CompletionTokens: int(output.Int()),
			TotalTokens:      int(input.Int() + output.Int()),
		}
	}

	return json.Marshal(resp)
}

// finishReason maps Cohere stop reasons onto OpenAI finish reasons.
func finishReason(stop string) string {
	lower := strings.ToLower(stop)
	if strings.Contains(lower, "length") || strings.Contains(lower, "max_tokens") {
		return "length"
	}
	return "stop"
}
