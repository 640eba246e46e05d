// Package codec maps on-disk configuration formats to and from the
// canonical value model.
//
// Codecs are selected by a format tag derived from the file extension.
// Paths with no structured extension fall back to the Text codec, which
// wraps the raw bytes as an opaque string and therefore never merges
// structurally.
package codec

import (
	"path"
	"strings"

	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// Format tags a supported on-disk representation.
type Format string

const (
	// JSON format (.json)
	JSON Format = "json"

	// YAML format (.yaml, .yml)
	YAML Format = "yaml"

	// TOML format (.toml)
	TOML Format = "toml"

	// INI format (.ini, .cfg)
	INI Format = "ini"

	// Text is the fallback for anything else: opaque string wrapping
	Text Format = "text"
)

// Codec decodes raw bytes into a canonical value and encodes one back.
//
// Decode must reject input its format cannot represent in the value model,
// and Encode must reject value shapes its format cannot express.
type Codec interface {
	Format() Format
	Decode(data []byte) (value.Value, error)
	Encode(v value.Value) ([]byte, error)
}

var codecs = map[Format]Codec{
	JSON: jsonCodec{},
	YAML: yamlCodec{},
	TOML: tomlCodec{},
	INI:  iniCodec{},
	Text: textCodec{},
}

// ForFormat returns the codec registered for a format tag
func ForFormat(f Format) (Codec, error) {
	c, ok := codecs[f]
	if !ok {
		return nil, status.ErrUnknownFormat.WrapMessage("format %q", f)
	}
	return c, nil
}

// FormatForPath derives the format tag from a path extension
func FormatForPath(pth string) Format {
	switch strings.ToLower(path.Ext(pth)) {
	case ".json":
		return JSON
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	case ".ini", ".cfg":
		return INI
	default:
		return Text
	}
}

// ForPath returns the codec handling a given path
func ForPath(pth string) Codec {
	c := codecs[FormatForPath(pth)]
	return c
}

// IsStructured reports whether a path carries a format that merges
// structurally. Text paths replace wholesale instead.
func IsStructured(pth string) bool {
	return FormatForPath(pth) != Text
}
