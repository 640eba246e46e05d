package codec

import (
	"fmt"
	"math"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// yamlCodec decodes through yaml.MapSlice so mapping key order is kept:
// yaml.v2 propagates the MapSlice map type to nested generic mappings.
type yamlCodec struct{}

func (yamlCodec) Format() Format { return YAML }

func (yamlCodec) Decode(data []byte) (value.Value, error) {
	var node yamlNode
	if err := yaml.Unmarshal(data, &node); err != nil {
		return value.Value{}, status.ErrParse.WrapMessage("yaml: %v", err)
	}
	return node.val, nil
}

// yamlNode steers each document node to an order-preserving decode: maps go
// through yaml.MapSlice (whose map type propagates to nested mappings),
// sequences recurse so mappings below a sequence stay ordered too.
type yamlNode struct {
	val value.Value
}

func (n *yamlNode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[interface{}]interface{}:
		var ms yaml.MapSlice
		if err := unmarshal(&ms); err != nil {
			return err
		}
		v, err := fromYAML(ms)
		if err != nil {
			return err
		}
		n.val = v
	case []interface{}:
		var seq []yamlNode
		if err := unmarshal(&seq); err != nil {
			return err
		}
		items := make([]value.Value, 0, len(seq))
		for _, item := range seq {
			items = append(items, item.val)
		}
		n.val = value.Array(items...)
	default:
		v, err := fromYAML(raw)
		if err != nil {
			return err
		}
		n.val = v
	}
	return nil
}

func fromYAML(raw interface{}) (value.Value, error) {
	switch x := raw.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(x), nil
	case int:
		return value.Int(int64(x)), nil
	case int64:
		return value.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return value.Value{}, status.ErrParse.WrapMessage("yaml: integer %d overflows int64", x)
		}
		return value.Int(int64(x)), nil
	case float64:
		return value.Float(x), nil
	case string:
		return value.String(x), nil
	case time.Time:
		return value.String(x.Format(time.RFC3339Nano)), nil
	case []interface{}:
		items := make([]value.Value, 0, len(x))
		for _, item := range x {
			v, err := fromYAML(item)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, v)
		}
		return value.Array(items...), nil
	case yaml.MapSlice:
		fields := make([]value.Field, 0, len(x))
		for _, item := range x {
			key, ok := item.Key.(string)
			if !ok {
				return value.Value{}, status.ErrParse.WrapMessage("yaml: non-string mapping key %v", item.Key)
			}
			v, err := fromYAML(item.Value)
			if err != nil {
				return value.Value{}, err
			}
			fields = append(fields, value.F(key, v))
		}
		return value.Object(fields...), nil
	case map[interface{}]interface{}:
		// yaml.v2 only produces this when the MapSlice type did not
		// propagate; reject rather than return scrambled key order
		return value.Value{}, status.ErrParse.WrapMessage("yaml: unordered mapping in document")
	default:
		return value.Value{}, status.ErrParse.WrapMessage("yaml: unsupported node type %T", raw)
	}
}

func (yamlCodec) Encode(v value.Value) ([]byte, error) {
	node, err := toYAML(v)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return nil, status.ErrEncode.WrapMessage("yaml: %v", err)
	}
	return out, nil
}

func toYAML(v value.Value) (interface{}, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		return v.BoolVal(), nil
	case value.KindInt:
		return v.IntVal(), nil
	case value.KindFloat:
		return v.FloatVal(), nil
	case value.KindString:
		return v.StringVal(), nil
	case value.KindArray:
		items := make([]interface{}, 0, v.Len())
		for _, item := range v.Items() {
			node, err := toYAML(item)
			if err != nil {
				return nil, err
			}
			items = append(items, node)
		}
		return items, nil
	case value.KindObject:
		ms := make(yaml.MapSlice, 0, v.Len())
		for _, field := range v.Fields() {
			node, err := toYAML(field.Value)
			if err != nil {
				return nil, err
			}
			ms = append(ms, yaml.MapItem{Key: field.Key, Value: node})
		}
		return ms, nil
	default:
		return nil, status.ErrEncode.WrapMessage("yaml: unsupported kind %s", v.Kind())
	}
}

// formatFloat renders a float with a guaranteed decimal point or exponent,
// so numeric kind survives a decode of the encoded output.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' || r == 'n' || r == 'i' || r == 'N' || r == 'I' {
			return s
		}
	}
	return fmt.Sprintf("%s.0", s)
}
