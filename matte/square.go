package matte

import (
	"image"
)

// SquareCrop 以主体为中心裁出正方形
// alpha > threshold*255 的像素算作主体，边长取主体包围盒的长边，超出原图的部分被截掉
func SquareCrop(r *Raster, threshold float64) (*Raster, error) {
	if err := checkCutout(r); err != nil {
		return nil, err
	}
	th := uint8(clampUnit(float32(threshold)) * 255)

	minX, minY := r.Width, r.Height
	maxX, maxY := -1, -1
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*r.Stride():]
		for x := 0; x < r.Width; x++ {
			if row[x*4+3] <= th {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < 0 {
		return r, nil
	}

	bbox := image.Rect(minX, minY, maxX+1, maxY+1)
	cx := (bbox.Min.X + bbox.Max.X) / 2
	cy := (bbox.Min.Y + bbox.Max.Y) / 2
	size := max(bbox.Dx(), bbox.Dy())
	x0, y0 := cx-size/2, cy-size/2
	rect := image.Rect(x0, y0, x0+size, y0+size).Intersect(image.Rect(0, 0, r.Width, r.Height))
	return r.Crop(rect), nil
}

// Premultiply RGB 乘以 alpha，透明处变黑，用来去掉抠图边缘的杂色
func Premultiply(r *Raster) (*Raster, error) {
	if err := checkCutout(r); err != nil {
		return nil, err
	}
	out := r.Clone()
	for i := 0; i < len(out.Pix); i += 4 {
		a := float64(out.Pix[i+3]) / 255.0
		out.Pix[i] = uint8(float64(out.Pix[i]) * a)
		out.Pix[i+1] = uint8(float64(out.Pix[i+1]) * a)
		out.Pix[i+2] = uint8(float64(out.Pix[i+2]) * a)
	}
	return out, nil
}
