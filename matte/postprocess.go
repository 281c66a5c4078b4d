package matte

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// DegeneratePolicy 模型输出为常量（max == min）时的处理方式
type DegeneratePolicy int

const (
	// DegenerateOpaque 全部置 255，默认值
	DegenerateOpaque DegeneratePolicy = iota
	// DegenerateTransparent 全部置 0
	DegenerateTransparent
	// DegenerateAbsolute 把常量当作概率，clamp 到 [0,1] 后乘 255，结果不一定是 0 或 255
	DegenerateAbsolute
	// DegenerateError 返回 ErrDegenerateMask
	DegenerateError
)

var degeneratePolicyNames = map[DegeneratePolicy]string{
	DegenerateAbsolute:    "absolute",
	DegenerateTransparent: "transparent",
	DegenerateOpaque:      "opaque",
	DegenerateError:       "error",
}

func (p DegeneratePolicy) String() string {
	if s, ok := degeneratePolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("DegeneratePolicy(%d)", int(p))
}

// ParseDegeneratePolicy 空字符串返回默认的 opaque
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DegenerateOpaque, nil
	}
	for p, name := range degeneratePolicyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown degenerate policy %q", s)
}

// Mask 单通道 8 位遮罩
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// Gray 转成 *image.Gray，方便编码输出
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(g.Pix, m.Pix)
	return g
}

// Postprocess 把模型原始输出还原成原图尺寸的 0-255 遮罩
//
//	双线性缩放回 width x height
//	全局 min/max 线性拉伸到 [0,255]，向零截断
func Postprocess(raw *Tensor, width, height int, policy DegeneratePolicy) (*Mask, error) {
	if raw == nil {
		return nil, newError(StagePostprocess, ErrInferenceFailure, "nil mask tensor")
	}
	if width < 1 || height < 1 {
		return nil, newError(StagePostprocess, ErrDimensionMismatch, "target size %dx%d", width, height)
	}
	rh, rw, ok := raw.spatial()
	if !ok {
		return nil, newError(StagePostprocess, ErrInvalidChannelCount,
			"mask tensor shape %v (%d values) is not single-channel", raw.Shape, len(raw.Data))
	}
	for _, v := range raw.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, newError(StagePostprocess, ErrDegenerateMask, "non-finite value in %dx%d mask", rw, rh)
		}
	}

	m := NewMask(width, height)
	// 常量输出在插值时可能产生舍入抖动，先在原始数据上判断
	if lo, hi := minMax(raw.Data); hi == lo {
		return degenerateMask(m, lo, policy, rw, rh)
	}

	resized := resizeBilinear(raw.Data, rw, rh, width, height)
	lo, hi := minMax(resized)
	if hi == lo {
		return degenerateMask(m, lo, policy, rw, rh)
	}

	span := hi - lo
	for i, v := range resized {
		m.Pix[i] = uint8(clampUnit((v-lo)/span) * 255)
	}
	return m, nil
}

func degenerateMask(m *Mask, value float32, policy DegeneratePolicy, rw, rh int) (*Mask, error) {
	var fill uint8
	switch policy {
	case DegenerateAbsolute:
		fill = uint8(clampUnit(value) * 255)
	case DegenerateTransparent:
		fill = 0
	case DegenerateOpaque:
		fill = 255
	default:
		return nil, newError(StagePostprocess, ErrDegenerateMask,
			"constant value %g in %dx%d mask (target %dx%d)", value, rw, rh, m.Width, m.Height)
	}
	for i := range m.Pix {
		m.Pix[i] = fill
	}
	return m, nil
}

func minMax(data []float32) (lo, hi float32) {
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
