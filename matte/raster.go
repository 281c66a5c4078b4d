package matte

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Raster 8 位交错像素，1、3 或 4 通道
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewRaster 分配一张全零图
func NewRaster(width, height, channels int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

func (r *Raster) Stride() int { return r.Width * r.Channels }

func (r *Raster) Size() string { return fmt.Sprintf("%dx%dx%d", r.Width, r.Height, r.Channels) }

// Validate 检查尺寸、通道数和像素长度
func (r *Raster) Validate() error {
	return checkRaster(StageInput, r)
}

func checkRaster(stage string, r *Raster) error {
	if r == nil {
		return newError(stage, ErrDimensionMismatch, "nil image")
	}
	if !validChannels(r.Channels) {
		return newError(stage, ErrInvalidChannelCount, "got %d channels, want 1, 3 or 4 (%dx%d)", r.Channels, r.Width, r.Height)
	}
	if r.Width < 1 || r.Height < 1 {
		return newError(stage, ErrDimensionMismatch, "empty image %dx%d", r.Width, r.Height)
	}
	if len(r.Pix) != r.Width*r.Height*r.Channels {
		return newError(stage, ErrDimensionMismatch, "pixel buffer has %d bytes, want %d for %s",
			len(r.Pix), r.Width*r.Height*r.Channels, r.Size())
	}
	return nil
}

func (r *Raster) Clone() *Raster {
	c := *r
	c.Pix = append([]uint8(nil), r.Pix...)
	return &c
}

// Crop 复制 rect 范围内的像素，rect 必须在图内
func (r *Raster) Crop(rect image.Rectangle) *Raster {
	dst := NewRaster(rect.Dx(), rect.Dy(), r.Channels)
	rowLen := rect.Dx() * r.Channels
	for y := 0; y < rect.Dy(); y++ {
		src := (rect.Min.Y+y)*r.Stride() + rect.Min.X*r.Channels
		copy(dst.Pix[y*rowLen:(y+1)*rowLen], r.Pix[src:src+rowLen])
	}
	return dst
}

// Image 转回标准库图像，单通道为 Gray，其余为 NRGBA
func (r *Raster) Image() image.Image {
	if r.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
		copy(g.Pix, r.Pix)
		return g
	}

	dst := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	switch r.Channels {
	case 4:
		copy(dst.Pix, r.Pix)
	case 3:
		for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
			dst.Pix[j] = r.Pix[i]
			dst.Pix[j+1] = r.Pix[i+1]
			dst.Pix[j+2] = r.Pix[i+2]
			dst.Pix[j+3] = 255
		}
	}
	return dst
}

// FromImage 把任意图像转成 Raster
//
//	Gray/Gray16           -> 1 通道
//	NRGBA、带透明的图像    -> 4 通道
//	其余                   -> 3 通道
func FromImage(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}

	channels := channelsOf(img)
	if channels == 1 {
		g, ok := img.(*image.Gray)
		if !ok || g.Rect.Min != (image.Point{}) || g.Stride != b.Dx() {
			g = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
		}
		r := NewRaster(b.Dx(), b.Dy(), 1)
		copy(r.Pix, g.Pix)
		return r, nil
	}

	src := toNRGBA(img)
	r := NewRaster(b.Dx(), b.Dy(), channels)
	if channels == 4 {
		copy(r.Pix, src.Pix)
		return r, nil
	}
	for i, j := 0, 0; j < len(r.Pix); i, j = i+4, j+3 {
		r.Pix[j] = src.Pix[i]
		r.Pix[j+1] = src.Pix[i+1]
		r.Pix[j+2] = src.Pix[i+2]
	}
	return r, nil
}

func channelsOf(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.NRGBA64:
		return 4
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	case *image.YCbCr, *image.CMYK:
		return 3
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return 4
	}
	if img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model {
		return 1
	}
	return 3
}

// toNRGBA 转为 NRGBA，原点移到 (0,0)，方便统一处理
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && nrgba.Stride == 4*b.Dx() {
		return nrgba
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func validChannels(c int) bool {
	return c == 1 || c == 3 || c == 4
}
