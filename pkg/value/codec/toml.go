package codec

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml"

	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// tomlCodec parses with go-toml and emits TOML directly: go-toml's tree
// writer orders keys alphabetically, which would break order-faithful
// round trips, so emission walks the value in field order instead.
//
// TOML has no null, so decoding can never produce KindNull and encoding
// rejects it; arrays must be kind-homogeneous.
type tomlCodec struct{}

func (tomlCodec) Format() Format { return TOML }

func (tomlCodec) Decode(data []byte) (value.Value, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return value.Value{}, status.ErrParse.WrapMessage("toml: %v", err)
	}
	return fromTOMLTree(tree)
}

func fromTOMLTree(tree *toml.Tree) (value.Value, error) {
	keys := tree.Keys()
	// tree.Keys ranges over a map; restore document order from positions
	sort.SliceStable(keys, func(i, j int) bool {
		pi := tree.GetPositionPath([]string{keys[i]})
		pj := tree.GetPositionPath([]string{keys[j]})
		if pi.Line != pj.Line {
			return pi.Line < pj.Line
		}
		return pi.Col < pj.Col
	})

	fields := make([]value.Field, 0, len(keys))
	for _, key := range keys {
		v, err := fromTOMLValue(tree.GetPath([]string{key}))
		if err != nil {
			return value.Value{}, err
		}
		fields = append(fields, value.F(key, v))
	}
	return value.Object(fields...), nil
}

func fromTOMLValue(raw interface{}) (value.Value, error) {
	switch x := raw.(type) {
	case *toml.Tree:
		return fromTOMLTree(x)
	case []*toml.Tree:
		items := make([]value.Value, 0, len(x))
		for _, sub := range x {
			v, err := fromTOMLTree(sub)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, v)
		}
		return value.Array(items...), nil
	case []interface{}:
		items := make([]value.Value, 0, len(x))
		for _, item := range x {
			v, err := fromTOMLValue(item)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, v)
		}
		return value.Array(items...), nil
	case bool:
		return value.Bool(x), nil
	case int64:
		return value.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return value.Value{}, status.ErrParse.WrapMessage("toml: integer %d overflows int64", x)
		}
		return value.Int(int64(x)), nil
	case float64:
		return value.Float(x), nil
	case string:
		return value.String(x), nil
	case time.Time:
		return value.String(x.Format(time.RFC3339Nano)), nil
	case toml.LocalDate, toml.LocalDateTime, toml.LocalTime:
		return value.String(fmt.Sprintf("%v", x)), nil
	default:
		return value.Value{}, status.ErrParse.WrapMessage("toml: unsupported node type %T", raw)
	}
}

func (tomlCodec) Encode(v value.Value) ([]byte, error) {
	if v.Kind() != value.KindObject {
		return nil, status.ErrEncode.WrapMessage("toml: document root must be a table, got %s", v.Kind())
	}
	var sb strings.Builder
	if err := writeTOMLTable(&sb, nil, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// writeTOMLTable emits simple keys first, then subtables, the only layout
// a TOML document can express for a table.
func writeTOMLTable(sb *strings.Builder, prefix []string, obj value.Value) error {
	type deferred struct {
		key string
		val value.Value
	}
	var tables []deferred

	for _, field := range obj.Fields() {
		switch {
		case field.Value.Kind() == value.KindObject:
			tables = append(tables, deferred{key: field.Key, val: field.Value})
		case isTOMLTableArray(field.Value):
			tables = append(tables, deferred{key: field.Key, val: field.Value})
		default:
			at := append(append([]string{}, prefix...), field.Key)
			inline, err := tomlInline(field.Value, at)
			if err != nil {
				return err
			}
			fmt.Fprintf(sb, "%s = %s\n", tomlKey(field.Key), inline)
		}
	}

	for _, table := range tables {
		path := append(append([]string{}, prefix...), table.key)
		if table.val.Kind() == value.KindObject {
			fmt.Fprintf(sb, "\n[%s]\n", tomlKeyPath(path))
			if err := writeTOMLTable(sb, path, table.val); err != nil {
				return err
			}
			continue
		}
		for _, item := range table.val.Items() {
			fmt.Fprintf(sb, "\n[[%s]]\n", tomlKeyPath(path))
			if err := writeTOMLTable(sb, path, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// isTOMLTableArray is true for non-empty arrays holding only tables
func isTOMLTableArray(v value.Value) bool {
	if v.Kind() != value.KindArray || v.Len() == 0 {
		return false
	}
	for _, item := range v.Items() {
		if item.Kind() != value.KindObject {
			return false
		}
	}
	return true
}

func tomlInline(v value.Value, at []string) (string, error) {
	switch v.Kind() {
	case value.KindNull:
		return "", status.ErrEncode.WrapMessage("toml: null is not representable (at %s)", strings.Join(at, "."))
	case value.KindBool:
		return strconv.FormatBool(v.BoolVal()), nil
	case value.KindInt:
		return strconv.FormatInt(v.IntVal(), 10), nil
	case value.KindFloat:
		return tomlFloat(v.FloatVal()), nil
	case value.KindString:
		return tomlQuote(v.StringVal()), nil
	case value.KindArray:
		if err := checkTOMLHomogeneous(v, at); err != nil {
			return "", err
		}
		parts := make([]string, 0, v.Len())
		for _, item := range v.Items() {
			part, err := tomlInline(item, at)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case value.KindObject:
		parts := make([]string, 0, v.Len())
		for _, field := range v.Fields() {
			part, err := tomlInline(field.Value, append(at, field.Key))
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s = %s", tomlKey(field.Key), part))
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", status.ErrEncode.WrapMessage("toml: unsupported kind %s", v.Kind())
	}
}

func checkTOMLHomogeneous(arr value.Value, at []string) error {
	items := arr.Items()
	if len(items) == 0 {
		return nil
	}
	kind := items[0].Kind()
	for _, item := range items[1:] {
		if item.Kind() != kind {
			return status.ErrEncode.WrapMessage(
				"toml: array at %s mixes %s and %s elements",
				strings.Join(at, "."), kind, item.Kind())
		}
	}
	return nil
}

func tomlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return formatFloat(f)
	}
}

func tomlKey(key string) string {
	if key == "" {
		return `""`
	}
	for _, r := range key {
		if !(r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return tomlQuote(key)
		}
	}
	return key
}

func tomlKeyPath(path []string) string {
	parts := make([]string, 0, len(path))
	for _, key := range path {
		parts = append(parts, tomlKey(key))
	}
	return strings.Join(parts, ".")
}

// tomlQuote emits a TOML basic string. Go's strconv.Quote is close but
// emits \xNN escapes, which TOML does not accept.
func tomlQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04X`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
