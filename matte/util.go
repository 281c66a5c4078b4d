package matte

// axisWeights 双线性插值某一轴的采样表（半像素中心，align_corners=false，不做抗锯齿）
type axisWeights struct {
	i0, i1 []int
	l0, l1 []float32
}

func newAxisWeights(in, out int) axisWeights {
	aw := axisWeights{
		i0: make([]int, out),
		i1: make([]int, out),
		l0: make([]float32, out),
		l1: make([]float32, out),
	}
	scale := float32(in) / float32(out)
	for d := 0; d < out; d++ {
		src := scale*(float32(d)+0.5) - 0.5
		if src < 0 {
			src = 0
		}
		i0 := int(src)
		if i0 > in-1 {
			i0 = in - 1
		}
		i1 := i0
		if i0 < in-1 {
			i1 = i0 + 1
		}
		l1 := src - float32(i0)
		if l1 > 1 {
			l1 = 1
		}
		aw.i0[d], aw.i1[d] = i0, i1
		aw.l0[d], aw.l1[d] = 1-l1, l1
	}
	return aw
}

// resizeBilinear 单通道浮点平面缩放，src 为 sh 行 sw 列
func resizeBilinear(src []float32, sw, sh, dw, dh int) []float32 {
	if sw == dw && sh == dh {
		return append([]float32(nil), src...)
	}
	xs := newAxisWeights(sw, dw)
	ys := newAxisWeights(sh, dh)
	dst := make([]float32, dw*dh)
	for y := 0; y < dh; y++ {
		r0 := src[ys.i0[y]*sw : ys.i0[y]*sw+sw]
		r1 := src[ys.i1[y]*sw : ys.i1[y]*sw+sw]
		h0, h1 := ys.l0[y], ys.l1[y]
		out := dst[y*dw : (y+1)*dw]
		for x := range out {
			x0, x1 := xs.i0[x], xs.i1[x]
			w0, w1 := xs.l0[x], xs.l1[x]
			out[x] = h0*(w0*r0[x0]+w1*r0[x1]) + h1*(w0*r1[x0]+w1*r1[x1])
		}
	}
	return dst
}

// clampUnit 截断到 [0,1]
func clampUnit(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
