package matte

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ParseHexColor 解析 #rgb、#rrggbb、#rrggbbaa，# 可省略
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ReplaceBackground 在抠图下面铺一层纯色
func ReplaceBackground(fg *Raster, c color.Color) (*Raster, error) {
	if err := checkCutout(fg); err != nil {
		return nil, err
	}
	dst := image.NewNRGBA(image.Rect(0, 0, fg.Width, fg.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), fg.Image(), image.Point{}, draw.Over)
	return FromNRGBA(dst), nil
}

// ReplaceBackgroundImage 背景图按中心填满前景尺寸后再合成
func ReplaceBackgroundImage(fg *Raster, bg image.Image) (*Raster, error) {
	if err := checkCutout(fg); err != nil {
		return nil, err
	}
	if bg == nil || bg.Bounds().Empty() {
		return nil, newError(StageBackground, ErrDimensionMismatch, "empty background image")
	}
	filled := imaging.Fill(bg, fg.Width, fg.Height, imaging.Center, imaging.Lanczos)
	draw.Draw(filled, filled.Bounds(), fg.Image(), image.Point{}, draw.Over)
	return FromNRGBA(filled), nil
}

// FromNRGBA 直接拷贝 NRGBA 像素为 4 通道 Raster
func FromNRGBA(img *image.NRGBA) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy(), 4)
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(r.Pix[y*rowLen:(y+1)*rowLen], img.Pix[src:src+rowLen])
	}
	return r
}

func checkCutout(fg *Raster) error {
	if err := checkRaster(StageBackground, fg); err != nil {
		return err
	}
	if fg.Channels != 4 {
		return newError(StageBackground, ErrInvalidChannelCount, "got %d channels, want 4 (%dx%d)", fg.Channels, fg.Width, fg.Height)
	}
	return nil
}
