package codec

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONCodec uses encoding/json. Parameters are already JSON, so they are embedded as-is.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("JSONCodec: empty body")
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
