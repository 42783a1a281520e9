package translator

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestOpenAIBodyRewritesModel(t *testing.T) {
	raw := []byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}],"top_p":0.9}`)

	body, err := OpenAIBody(raw, "llama-3.3-70b", false)
	if err != nil {
		t.Fatalf("OpenAIBody failed: %v", err)
	}
	if got := gjson.GetBytes(body, "model").String(); got != "llama-3.3-70b" {
		t.Errorf("model = %q", got)
	}
	// Fields the relay does not understand survive the rewrite.
	if got := gjson.GetBytes(body, "top_p").Float(); got != 0.9 {
		t.Errorf("top_p = %v, want passthrough", got)
	}
}

func TestOpenAIBodyStripsStreamWhenNotStreaming(t *testing.T) {
	raw := []byte(`{"model":"auto","stream":true,"messages":[]}`)

	body, err := OpenAIBody(raw, "llama-3.3-70b", false)
	if err != nil {
		t.Fatalf("OpenAIBody failed: %v", err)
	}
	if gjson.GetBytes(body, "stream").Exists() {
		t.Error("stream flag survived non-streaming rewrite")
	}

	body, err = OpenAIBody(raw, "llama-3.3-70b", true)
	if err != nil {
		t.Fatalf("OpenAIBody failed: %v", err)
	}
	if !gjson.GetBytes(body, "stream").Bool() {
		t.Error("stream flag dropped for streaming request")
	}
}
