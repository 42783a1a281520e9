package translator

import (
	"github.com/tidwall/sjson"
)

// OpenAIBody rewrites a raw OpenAI-format request body for forwarding:
// the model field is replaced with the effective model for the serving
// provider and the stream flag is dropped unless streaming is active.
// All other fields pass through byte for byte.
func OpenAIBody(raw []byte, effectiveModel string, stream bool) ([]byte, error) {
	body, err := sjson.SetBytes(raw, "model", effectiveModel)
	if err != nil {
		return nil, err
	}
	if !stream {
		body, err = sjson.DeleteBytes(body, "stream")
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}
