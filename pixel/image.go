package pixel

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is a drawable image over externally allocated pixel memory.
type Image interface {
	draw.Image

	// Clear the image.
	Clear()

	// Fill the image with a single color.
	Fill(color.Color)
}

// Buffer holds the pixel memory and is the container used by the image
// formats in this package.
type Buffer struct {
	// Rect is the image bounding box.
	Rect image.Rectangle

	// Pix is the pixel memory. It is not owned by the image.
	Pix []byte

	// Stride is the Pix stride (in bytes) between vertically adjacent
	// pixels. Display allocators may round it up past the row width.
	Stride int
}

func (p *Buffer) Bounds() image.Rectangle {
	return p.Rect
}

func (p *Buffer) Clear() {
	for i := range p.Pix {
		p.Pix[i] = 0x00
	}
}

// ABGRImage is a packed 32-bit A:B:G:R image, the layout of DRM format
// 'AB24'. On little-endian memory the channel bytes are R, G, B, A in
// ascending order.
type ABGRImage struct {
	Buffer
}

// NewABGRImage wraps w x h pixels of pix with the given row stride.
func NewABGRImage(pix []byte, w, h, stride int) *ABGRImage {
	return &ABGRImage{
		Buffer: Buffer{
			Rect:   image.Rect(0, 0, w, h),
			Pix:    pix,
			Stride: stride,
		},
	}
}

func (p *ABGRImage) ColorModel() color.Model {
	return color.RGBAModel
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *ABGRImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
}

func (p *ABGRImage) At(x, y int) color.Color {
	if !(image.Point{x, y}).In(p.Rect) {
		return color.Transparent
	}
	i := p.PixOffset(x, y)
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: p.Pix[i+3]}
}

func (p *ABGRImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}).In(p.Rect) {
		return
	}
	i := p.PixOffset(x, y)
	v := color.RGBAModel.Convert(c).(color.RGBA)
	p.Pix[i+0] = v.R
	p.Pix[i+1] = v.G
	p.Pix[i+2] = v.B
	p.Pix[i+3] = v.A
}

func (p *ABGRImage) Fill(c color.Color) {
	v := color.RGBAModel.Convert(c).(color.RGBA)
	row := p.Pix[:0:0]
	for x := 0; x < p.Rect.Dx(); x++ {
		row = append(row, v.R, v.G, v.B, v.A)
	}
	for y := 0; y < p.Rect.Dy(); y++ {
		copy(p.Pix[y*p.Stride:], row)
	}
}
