// Package imaging turns pasted image bytes into compact JPEG data URLs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/performance"
)

// DataURLPrefix starts every payload produced by Compress
const DataURLPrefix = "data:image/jpeg;base64,"

// Defaults used when Options leave a field at zero
const (
	DefaultMaxWidth = 800
	DefaultQuality  = 60
)

// Options control the output size and quality
type Options struct {
	MaxWidth int
	Quality  int
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Compressor decodes, downsizes and re-encodes images
type Compressor struct {
	opts    Options
	buffers *performance.BufferPool
}

// NewCompressor creates a compressor
func NewCompressor(opts Options) *Compressor {
	return &Compressor{
		opts:    opts.withDefaults(),
		buffers: performance.NewBufferPool(),
	}
}

// Compress returns raw as a JPEG data URL no wider than MaxWidth. The aspect
// ratio is kept and transparent areas become white.
func (c *Compressor) Compress(raw []byte) (string, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", errors.ErrImageDecodeFailed.WithCause(err)
	}

	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return "", errors.ErrImageDecodeFailed.WithContext("reason", "empty image")
	}
	if width > c.opts.MaxWidth {
		height = height * c.opts.MaxWidth / width
		if height < 1 {
			height = 1
		}
		width = c.opts.MaxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	buf := c.buffers.Get()
	defer c.buffers.Put(buf)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: c.opts.Quality}); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeImage, "IMAGE_ENCODE_FAILED", "failed to encode image").
			WithContext("format", format)
	}

	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
