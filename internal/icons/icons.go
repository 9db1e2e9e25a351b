// Package icons normalizes uploaded profile pictures.
package icons

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ContentType is the media type of every normalized icon.
const ContentType = "image/png"

// ErrUnsupported is returned for input that is not a decodable image.
var ErrUnsupported = errors.New("unsupported image")

// Normalize decodes r, crops the largest centered square and scales it to
// size x size, returning PNG bytes.
func Normalize(r io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("icon size must be positive, got %d", size)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	crop := CenterSquare(src.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupported)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}

// CenterSquare returns the largest square centered in b.
func CenterSquare(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	side := min(w, h)
	x := b.Min.X + (w-side)/2
	y := b.Min.Y + (h-side)/2
	return image.Rect(x, y, x+side, y+side)
}
