package matte

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess_Shape(t *testing.T) {
	tests := []struct {
		name     string
		channels int
	}{
		{name: "灰度", channels: 1},
		{name: "三通道", channels: 3},
		{name: "四通道", channels: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := NewRaster(50, 40, tt.channels)
			got, err := Preprocess(img, image.Point{})
			require.NoError(t, err)
			assert.Equal(t, []int{1, 3, 1024, 1024}, got.Shape)
			assert.Len(t, got.Data, 3*1024*1024)
		})
	}
}

func TestPreprocess_ShapeInvariantToResolution(t *testing.T) {
	if testing.Short() {
		t.Skip("large input")
	}
	small, err := Preprocess(solidRaster(50, 50, 200, 10, 30), DefaultInputSize)
	require.NoError(t, err)
	large, err := Preprocess(solidRaster(4000, 3000, 200, 10, 30), DefaultInputSize)
	require.NoError(t, err)

	assert.Equal(t, small.Shape, large.Shape)
	// 纯色图缩放后仍是纯色
	want := []float32{200.0/255 - 0.5, 10.0/255 - 0.5, 30.0/255 - 0.5}
	for c := 0; c < 3; c++ {
		plane := large.Plane(c)
		assert.InDelta(t, want[c], plane[0], 1e-5)
		assert.InDelta(t, want[c], plane[len(plane)-1], 1e-5)
		assert.InDelta(t, want[c], small.Plane(c)[12345], 1e-5)
	}
}

func TestPreprocess_InvalidChannelCount(t *testing.T) {
	img := &Raster{Width: 4, Height: 4, Channels: 2, Pix: make([]uint8, 32)}
	_, err := Preprocess(img, DefaultInputSize)
	require.ErrorIs(t, err, ErrInvalidChannelCount)
	assert.Contains(t, err.Error(), "preprocess")
	assert.Contains(t, err.Error(), "4x4")
}

func TestPreprocess_Normalization(t *testing.T) {
	img := NewRaster(2, 2, 4)
	copy(img.Pix, []uint8{
		0, 255, 51, 7, 102, 0, 0, 0,
		255, 255, 255, 255, 10, 20, 30, 40,
	})

	got, err := Preprocess(img, image.Pt(2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 2}, got.Shape)

	// alpha 被丢弃，值为 v/255-0.5
	assert.InDeltaSlice(t, []float32{-0.5, 102.0/255 - 0.5, 0.5, 10.0/255 - 0.5}, got.Plane(0), 1e-6)
	assert.InDeltaSlice(t, []float32{0.5, -0.5, 0.5, 20.0/255 - 0.5}, got.Plane(1), 1e-6)
	assert.InDeltaSlice(t, []float32{51.0/255 - 0.5, -0.5, 0.5, 30.0/255 - 0.5}, got.Plane(2), 1e-6)
}

func TestPreprocess_GrayReplicated(t *testing.T) {
	img := NewRaster(3, 2, 1)
	copy(img.Pix, []uint8{0, 64, 128, 192, 255, 32})

	got, err := Preprocess(img, image.Pt(6, 4))
	require.NoError(t, err)
	assert.Equal(t, got.Plane(0), got.Plane(1))
	assert.Equal(t, got.Plane(0), got.Plane(2))
	for _, v := range got.Data {
		assert.GreaterOrEqual(t, v, float32(-0.5-1e-6))
		assert.LessOrEqual(t, v, float32(0.5+1e-6))
	}
}

func TestResizeBilinear(t *testing.T) {
	src := []float32{
		0, 1,
		2, 3,
	}
	got := resizeBilinear(src, 2, 2, 4, 4)
	want := []float32{
		0, 0.25, 0.75, 1,
		0.5, 0.75, 1.25, 1.5,
		1.5, 1.75, 2.25, 2.5,
		2, 2.25, 2.75, 3,
	}
	assert.InDeltaSlice(t, want, got, 1e-6)

	// 缩小：4x4 -> 2x2 取中心两点的平均
	down := resizeBilinear(want, 4, 4, 2, 2)
	assert.InDeltaSlice(t, []float32{0.375, 1.125, 1.875, 2.625}, down, 1e-6)

	same := resizeBilinear(src, 2, 2, 2, 2)
	assert.Equal(t, src, same)
	same[0] = 42
	assert.Equal(t, float32(0), src[0], "identity resize must copy")
}
