package matte

import (
	"fmt"
	"image"
)

// Box 闭区间包围盒，XMax/YMax 本身也包含在内
type Box struct {
	XMin, YMin int
	XMax, YMax int
}

// Rect 转成半开区间的 image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax+1, b.YMax+1)
}

func (b Box) Width() int  { return b.XMax - b.XMin + 1 }
func (b Box) Height() int { return b.YMax - b.YMin + 1 }

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Rect 手动裁剪区域，Width/Height 都大于 0 时才生效
type Rect struct {
	X, Y          int
	Width, Height int
}

func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ManualCrop 按 rect 裁剪，rect 为空时原样返回，越界时返回 ErrCropOutOfBounds
func ManualCrop(r *Raster, rect Rect) (*Raster, error) {
	if err := checkRaster(StageManualCrop, r); err != nil {
		return nil, err
	}
	if rect.Empty() {
		return r, nil
	}
	rr := rect.Rectangle()
	if rect.X < 0 || rect.Y < 0 || !rr.In(image.Rect(0, 0, r.Width, r.Height)) {
		return nil, newError(StageManualCrop, ErrCropOutOfBounds,
			"rect x=%d y=%d w=%d h=%d exceeds image %dx%d",
			rect.X, rect.Y, rect.Width, rect.Height, r.Width, r.Height)
	}
	return r.Crop(rr), nil
}

// BoundingBox 从 alpha 通道计算非透明区域的包围盒
// 先按行、按列统计是否有 alpha > 0 的像素，再取首尾；全透明时 ok=false
func BoundingBox(r *Raster) (box Box, ok bool, err error) {
	if err := checkRaster(StageAutoCrop, r); err != nil {
		return Box{}, false, err
	}
	if r.Channels != 4 {
		return Box{}, false, newError(StageAutoCrop, ErrInvalidChannelCount,
			"got %d channels, want 4 (%dx%d)", r.Channels, r.Width, r.Height)
	}

	rows := make([]bool, r.Height)
	cols := make([]bool, r.Width)
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*r.Stride():]
		for x := 0; x < r.Width; x++ {
			if row[x*4+3] > 0 {
				rows[y] = true
				cols[x] = true
			}
		}
	}

	ymin, ymax := firstLast(rows)
	xmin, xmax := firstLast(cols)
	if ymin < 0 || xmin < 0 {
		return Box{}, false, nil
	}
	return Box{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}, true, nil
}

// AutoCrop 裁掉四周全透明的行列；全透明图原样返回
func AutoCrop(r *Raster) (*Raster, error) {
	box, ok, err := BoundingBox(r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return r, nil
	}
	if box.Width() == r.Width && box.Height() == r.Height {
		return r, nil
	}
	return r.Crop(box.Rect()), nil
}

func firstLast(flags []bool) (first, last int) {
	first, last = -1, -1
	for i, f := range flags {
		if !f {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last
}
