package json

import (
	stdjson "encoding/json"
	"strings"
	"testing"
)

type payload struct {
	Model    string  `json:"model"`
	Stream   bool    `json:"stream,omitempty"`
	TopP     float64 `json:"top_p,omitempty"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data := []byte(`{"model":"command-r","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	var decoded payload
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Model != "command-r" || !decoded.Stream || len(decoded.Messages) != 1 {
		t.Errorf("Unmarshal mismatch: %+v", decoded)
	}

	out, err := Marshal(decoded)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"model":"command-r"`) {
		t.Errorf("Marshal output missing model field: %s", out)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`{"model":"gpt-4o"}`, true},
		{`[1, 2, 3]`, true},
		{`not json`, false},
		{`{"unclosed": }`, false},
	}

	for _, tt := range tests {
		if got := Valid([]byte(tt.input)); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRawMessage(t *testing.T) {
	type wrapper struct {
		Error RawMessage `json:"error"`
	}

	input := []byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`)
	var w wrapper
	if err := Unmarshal(input, &w); err != nil {
		t.Fatalf("Unmarshal with RawMessage failed: %v", err)
	}
	if string(w.Error) != `{"message":"bad","type":"invalid_request_error"}` {
		t.Errorf("RawMessage = %s", w.Error)
	}
}

func TestDecoderUseNumber(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"created": 1735689600}`))
	dec.UseNumber()

	var result map[string]any
	if err := dec.Decode(&result); err != nil {
		t.Fatalf("Decode with UseNumber failed: %v", err)
	}
	num, ok := result["created"].(Number)
	if !ok {
		t.Fatalf("expected Number, got %T", result["created"])
	}
	if num.String() != "1735689600" {
		t.Errorf("Number = %s, want 1735689600", num)
	}
}

func TestEncoder(t *testing.T) {
	var buf strings.Builder
	enc := NewEncoder(&buf)
	if err := enc.Encode(map[string]string{"object": "list"}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"object":"list"}` {
		t.Errorf("Encode = %s", got)
	}
}

func BenchmarkMarshal_Sonic(b *testing.B) {
	data := map[string]any{"model": "llama-3.3-70b", "messages": []string{"hello"}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Marshal(data)
	}
}

func BenchmarkMarshal_StdLib(b *testing.B) {
	data := map[string]any{"model": "llama-3.3-70b", "messages": []string{"hello"}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stdjson.Marshal(data)
	}
}
