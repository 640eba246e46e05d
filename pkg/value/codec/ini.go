package codec

import (
	"bytes"
	"strconv"

	ini "github.com/go-ini/ini"

	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// iniCodec maps INI documents to a two-level object: keys of the default
// section become top-level string fields, named sections become nested
// objects. INI carries no type information, so every decoded leaf is a
// string; encoding accepts scalar leaves and formats them, meaning exact
// round trips hold for string-valued documents only.
type iniCodec struct{}

func (iniCodec) Format() Format { return INI }

func (iniCodec) Decode(data []byte) (value.Value, error) {
	f, err := ini.Load(data)
	if err != nil {
		return value.Value{}, status.ErrParse.WrapMessage("ini: %v", err)
	}

	fields := []value.Field{}
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			for _, key := range section.Keys() {
				fields = append(fields, value.F(key.Name(), value.String(key.Value())))
			}
			continue
		}
		sub := make([]value.Field, 0, len(section.Keys()))
		for _, key := range section.Keys() {
			sub = append(sub, value.F(key.Name(), value.String(key.Value())))
		}
		fields = append(fields, value.F(section.Name(), value.Object(sub...)))
	}
	return value.Object(fields...), nil
}

func (iniCodec) Encode(v value.Value) ([]byte, error) {
	if v.Kind() != value.KindObject {
		return nil, status.ErrEncode.WrapMessage("ini: document root must be an object, got %s", v.Kind())
	}

	f := ini.Empty()
	defaultSection := f.Section(ini.DefaultSection)
	for _, field := range v.Fields() {
		if field.Value.Kind() == value.KindObject {
			section, err := f.NewSection(field.Key)
			if err != nil {
				return nil, status.ErrEncode.WrapMessage("ini: section %q: %v", field.Key, err)
			}
			for _, sub := range field.Value.Fields() {
				leaf, err := iniLeaf(sub.Value, field.Key+"."+sub.Key)
				if err != nil {
					return nil, err
				}
				if _, err := section.NewKey(sub.Key, leaf); err != nil {
					return nil, status.ErrEncode.WrapMessage("ini: key %q: %v", sub.Key, err)
				}
			}
			continue
		}
		leaf, err := iniLeaf(field.Value, field.Key)
		if err != nil {
			return nil, err
		}
		if _, err := defaultSection.NewKey(field.Key, leaf); err != nil {
			return nil, status.ErrEncode.WrapMessage("ini: key %q: %v", field.Key, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, status.ErrEncode.WrapMessage("ini: %v", err)
	}
	return buf.Bytes(), nil
}

func iniLeaf(v value.Value, at string) (string, error) {
	switch v.Kind() {
	case value.KindString:
		return v.StringVal(), nil
	case value.KindBool:
		return strconv.FormatBool(v.BoolVal()), nil
	case value.KindInt:
		return strconv.FormatInt(v.IntVal(), 10), nil
	case value.KindFloat:
		return formatFloat(v.FloatVal()), nil
	default:
		return "", status.ErrEncode.WrapMessage("ini: key %s holds %s, which ini cannot express", at, v.Kind())
	}
}
