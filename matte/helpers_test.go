package matte

import (
	"context"
	"sync/atomic"
)

// solidRaster 每个像素都相同的图
func solidRaster(w, h int, px ...uint8) *Raster {
	r := NewRaster(w, h, len(px))
	for i := 0; i < w*h; i++ {
		copy(r.Pix[i*len(px):], px)
	}
	return r
}

// maskTensor 按 fn 生成 [1,1,h,w] 的原始遮罩
func maskTensor(w, h int, fn func(x, y int) float32) *Tensor {
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = fn(x, y)
		}
	}
	return &Tensor{Shape: []int{1, 1, h, w}, Data: data}
}

// fixedSegmenter 总是返回同一个遮罩，并记录调用次数和输入形状
type fixedSegmenter struct {
	out   *Tensor
	err   error
	calls atomic.Int32
	shape []int
}

func (f *fixedSegmenter) Segment(_ context.Context, input *Tensor) (*Tensor, error) {
	f.calls.Add(1)
	f.shape = append([]int(nil), input.Shape...)
	return f.out, f.err
}

// setAlpha 把 4 通道图 (x,y) 的 alpha 设为 a
func setAlpha(r *Raster, x, y int, a uint8) {
	r.Pix[(y*r.Width+x)*4+3] = a
}
