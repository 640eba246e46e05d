package codec

import (
	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// textCodec wraps raw bytes as an opaque string. Text values never merge
// structurally: a higher precedence layer replaces the whole document.
type textCodec struct{}

func (textCodec) Format() Format { return Text }

func (textCodec) Decode(data []byte) (value.Value, error) {
	return value.String(string(data)), nil
}

func (textCodec) Encode(v value.Value) ([]byte, error) {
	if v.Kind() != value.KindString {
		return nil, status.ErrEncode.WrapMessage("text: expected a string value, got %s", v.Kind())
	}
	return []byte(v.StringVal()), nil
}
