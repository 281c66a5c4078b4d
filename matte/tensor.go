package matte

import (
	"fmt"
	"image"
)

// DefaultInputSize 模型输入尺寸
var DefaultInputSize = image.Pt(1024, 1024)

// Tensor 行优先的 float32 张量
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor 校验 shape 与数据长度一致
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	for _, d := range shape {
		if d < 1 {
			return nil, fmt.Errorf("invalid tensor shape %v", shape)
		}
	}
	t := &Tensor{Shape: append([]int(nil), shape...), Data: data}
	if len(shape) == 0 || t.Len() != len(data) {
		return nil, fmt.Errorf("tensor shape %v needs %d values, got %d", shape, t.Len(), len(data))
	}
	return t, nil
}

// Len 元素个数
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Plane 按 NCHW 取第 c 个通道（batch 固定为 0）
func (t *Tensor) Plane(c int) []float32 {
	h, w := t.Shape[len(t.Shape)-2], t.Shape[len(t.Shape)-1]
	return t.Data[c*h*w : (c+1)*h*w]
}

// spatial 去掉前导的 1 维，返回 (h, w)；前导维不全为 1 时 ok=false
func (t *Tensor) spatial() (h, w int, ok bool) {
	if len(t.Shape) < 2 {
		return 0, 0, false
	}
	for _, d := range t.Shape[:len(t.Shape)-2] {
		if d != 1 {
			return 0, 0, false
		}
	}
	h, w = t.Shape[len(t.Shape)-2], t.Shape[len(t.Shape)-1]
	return h, w, h > 0 && w > 0 && len(t.Data) == t.Len()
}
