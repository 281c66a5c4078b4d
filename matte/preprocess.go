package matte

import "image"

// 归一化参数：mean 0.5，std 1.0
const (
	normMean = 0.5
	normStd  = 1.0
)

// Preprocess 把任意图像变成模型输入 [1,3,H,W]
//
//	1 通道复制成 3 通道，4 通道丢掉 alpha
//	先在浮点张量上做双线性缩放，再 /255，再减 0.5
func Preprocess(r *Raster, size image.Point) (*Tensor, error) {
	if err := checkRaster(StagePreprocess, r); err != nil {
		return nil, err
	}
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultInputSize
	}

	planes := channelPlanes(r)
	plane := size.X * size.Y
	data := make([]float32, 3*plane)
	for c := 0; c < 3; c++ {
		resized := resizeBilinear(planes[c], r.Width, r.Height, size.X, size.Y)
		out := data[c*plane : (c+1)*plane]
		for i, v := range resized {
			out[i] = (v/255 - normMean) / normStd
		}
	}

	return &Tensor{Shape: []int{1, 3, size.Y, size.X}, Data: data}, nil
}

// channelPlanes 按通道策略拆成 3 个浮点平面
func channelPlanes(r *Raster) [3][]float32 {
	n := r.Width * r.Height
	var planes [3][]float32
	for c := range planes {
		planes[c] = make([]float32, n)
	}

	switch r.Channels {
	case 1:
		for i, v := range r.Pix {
			planes[0][i] = float32(v)
		}
		copy(planes[1], planes[0])
		copy(planes[2], planes[0])
	default:
		for i := 0; i < n; i++ {
			p := r.Pix[i*r.Channels:]
			planes[0][i] = float32(p[0])
			planes[1][i] = float32(p[1])
			planes[2][i] = float32(p[2])
		}
	}
	return planes
}
