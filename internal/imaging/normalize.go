package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// MaxDimension is the largest width or height forwarded to the provider.
const MaxDimension = 2048

// Normalized is a reference image ready to be sent to the provider.
type Normalized struct {
	Data           []byte
	MIMEType       string
	SourceFormat   string
	SourceWidth    int
	SourceHeight   int
	Width          int
	Height         int
	HasAlpha       bool
	Resized        bool
	ConvertedModel bool
}

// Normalize decodes an encoded image, converts it to NRGBA when it carries
// transparency or to opaque RGBA otherwise, downsamples it so neither side
// exceeds maxDim and re-encodes it as PNG. maxDim <= 0 selects MaxDimension.
func Normalize(data []byte, maxDim int) (*Normalized, error) {
	if maxDim <= 0 {
		maxDim = MaxDimension
	}
	if len(data) == 0 {
		return nil, errEmptyPayload
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	out := &Normalized{
		MIMEType:     "image/png",
		SourceFormat: format,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
		HasAlpha:     hasAlpha(src),
	}

	var img draw.Image
	if out.HasAlpha {
		_, already := src.(*image.NRGBA)
		out.ConvertedModel = !already
		img = toNRGBA(src)
	} else {
		_, already := src.(*image.RGBA)
		out.ConvertedModel = !already
		img = toRGBA(src)
	}

	w, h := FitWithin(b.Dx(), b.Dy(), maxDim)
	if w != b.Dx() || h != b.Dy() {
		img = resize(img, w, h, out.HasAlpha)
		out.Resized = true
	}
	out.Width, out.Height = w, h

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// FitWithin returns the dimensions after scaling (width, height) down so that
// the larger side equals maxDim. Images already within bounds are unchanged.
func FitWithin(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	var w, h int
	if width > height {
		w = maxDim
		h = int(float64(height) * float64(maxDim) / float64(width))
	} else {
		h = maxDim
		w = int(float64(width) * float64(maxDim) / float64(height))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.Alpha, *image.Alpha16, *image.NYCbCrA:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	case interface{ Opaque() bool }:
		return !m.Opaque()
	}
	return false
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if m, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return m
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	if m, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return m
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func resize(src draw.Image, w, h int, alpha bool) draw.Image {
	var dst draw.Image
	if alpha {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
