// Package imaging decodes, normalises and re-encodes reference images before
// they are forwarded to the generation provider.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var errEmptyPayload = errors.New("empty image payload")

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

// StripDataURL removes a "data:<mime>;base64," style prefix. Everything up to
// and including the first comma is treated as metadata.
func StripDataURL(encoded string) string {
	if _, rest, ok := strings.Cut(encoded, ","); ok {
		return rest
	}
	return encoded
}

// DecodeBase64 strips an optional data URL prefix and decodes the standard
// base64 alphabet. Embedded whitespace is ignored and missing padding is
// tolerated.
func DecodeBase64(encoded string) ([]byte, error) {
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, StripDataURL(encoded))
	if payload == "" {
		return nil, errEmptyPayload
	}

	enc := base64.StdEncoding
	if len(payload)%4 != 0 {
		enc = base64.RawStdEncoding
		payload = strings.TrimRight(payload, "=")
	}
	data, err := enc.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return nil, errEmptyPayload
	}
	return data, nil
}

// EncodeBase64 encodes raw bytes with the standard base64 alphabet.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Inspect reads the image header and reports its format and dimensions.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, errEmptyPayload
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: len(data)}, nil
}
