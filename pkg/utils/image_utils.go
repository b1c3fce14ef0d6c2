package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register png

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register webp
)

const (
	DefaultImageSize   = 400
	DefaultJPEGQuality = 85
)

// ImageProcessor turns uploaded pictures into square JPEG profile images.
type ImageProcessor struct {
	log     *zap.Logger
	size    int
	quality int
}

func NewImageProcessor(size, quality int, log *zap.Logger) *ImageProcessor {
	if size <= 0 {
		size = DefaultImageSize
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &ImageProcessor{log: log, size: size, quality: quality}
}

// Normalize decodes a jpeg, png or webp image, crops it to a centred square,
// scales it to size x size and re-encodes it as JPEG.
func (p *ImageProcessor) Normalize(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(b), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	p.log.Info("Image normalized",
		zap.String("format", format),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("size", p.size),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

// coverRect returns the largest centred square inside b.
func coverRect(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}
