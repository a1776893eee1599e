package escpos

import (
	"errors"
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

var (
	// ErrEmptySurface is returned for a nil or zero-area image
	ErrEmptySurface = errors.New("escpos: empty image surface")
	// ErrSurfaceTooLarge is returned when a dimension does not fit the 16-bit header fields
	ErrSurfaceTooLarge = errors.New("escpos: image surface too large")
)

// luminance threshold: darker pixels are printed
const inkThreshold = 128

// RasterImage converts an image to a GS v 0 raster block (header + packed
// bitmap). Each row is ceil(width/8) bytes, most significant bit first,
// padded with blank bits.
func RasterImage(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptySurface
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrEmptySurface
	}

	widthBytes := (width + 7) / 8
	if widthBytes > 0xFFFF || height > 0xFFFF {
		return nil, fmt.Errorf("%w: %dx%d", ErrSurfaceTooLarge, width, height)
	}

	out := make([]byte, 0, 8+widthBytes*height)

	// GS v 0 m xL xH yL yH, m = 0 (normal)
	out = append(out,
		GS, 'v', '0', 0,
		byte(widthBytes&0xFF), byte(widthBytes>>8),
		byte(height&0xFF), byte(height>>8),
	)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 8 {
			var b byte
			for bit := 0; bit < 8; bit++ {
				px := x + bit
				if px >= width {
					break
				}
				if isInk(img, bounds.Min.X+px, bounds.Min.Y+y) {
					b |= 1 << uint(7-bit)
				}
			}
			out = append(out, b)
		}
	}
	return out, nil
}

// RasterJob wraps a raster block into a complete job: printer reset, the
// image, a three line feed and a partial cut.
func RasterJob(img image.Image) ([]byte, error) {
	block, err := RasterImage(img)
	if err != nil {
		return nil, err
	}
	job := make([]byte, 0, len(block)+9)
	job = append(job, ESC, '@')
	job = append(job, block...)
	job = append(job, ESC, 'd', 3)
	job = append(job, GS, 'V', 66, 0)
	return job, nil
}

// isInk composites the pixel over white and compares its luminance
// (0.299R + 0.587G + 0.114B) against the threshold.
func isInk(img image.Image, x, y int) bool {
	r, g, b, a := img.At(x, y).RGBA()

	// RGBA() is alpha-premultiplied in 0..65535; adding the missing alpha
	// places the pixel on a white background.
	if a < 0xFFFF {
		r += 0xFFFF - a
		g += 0xFFFF - a
		b += 0xFFFF - a
	}

	r8 := r >> 8
	g8 := g >> 8
	b8 := b >> 8

	gray := (299*r8 + 587*g8 + 114*b8) / 1000
	return gray < inkThreshold
}

// ScaleToWidth downsizes an image wider than maxWidth with nearest-neighbour
// sampling, keeping the aspect ratio. Narrower images are returned as is.
func ScaleToWidth(src image.Image, maxWidth int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= maxWidth || w == 0 || maxWidth <= 0 {
		return src
	}

	ratio := float64(w) / float64(maxWidth)
	newHeight := int(float64(h) / ratio)
	if newHeight < 1 {
		newHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < maxWidth; x++ {
			sx := bounds.Min.X + int(float64(x)*ratio)
			sy := bounds.Min.Y + int(float64(y)*ratio)
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// QRImage renders data as a QR code of size x size pixels
func QRImage(data string, size int) (image.Image, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	qr.DisableBorder = false
	return qr.Image(size), nil
}
