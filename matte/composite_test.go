package matte

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposite_Threshold(t *testing.T) {
	img := solidRaster(4, 1, 10, 20, 30)
	mask := &Mask{Width: 4, Height: 1, Pix: []uint8{0, 128, 129, 255}}

	got, err := Composite(img, mask)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Channels)
	assert.Equal(t, []uint8{
		10, 20, 30, 0,
		10, 20, 30, 0,
		10, 20, 30, 255,
		10, 20, 30, 255,
	}, got.Pix)
}

func TestComposite_Channels(t *testing.T) {
	mask := &Mask{Width: 2, Height: 1, Pix: []uint8{255, 0}}

	gray := NewRaster(2, 1, 1)
	copy(gray.Pix, []uint8{7, 200})
	got, err := Composite(gray, mask)
	require.NoError(t, err)
	assert.Equal(t, []uint8{7, 7, 7, 255, 200, 200, 200, 0}, got.Pix)

	// 原有 alpha 被覆盖而不是混合
	rgba := NewRaster(2, 1, 4)
	copy(rgba.Pix, []uint8{1, 2, 3, 10, 4, 5, 6, 250})
	before := rgba.Clone()
	got, err = Composite(rgba, mask)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 0}, got.Pix)
	assert.Equal(t, before, rgba, "input must not be mutated")
}

func TestComposite_DimensionMismatch(t *testing.T) {
	img := NewRaster(4, 3, 3)
	_, err := Composite(img, NewMask(3, 4))
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "mask 3x4, image 4x3")

	_, err = Composite(img, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestComposite_Idempotent(t *testing.T) {
	img := NewRaster(3, 3, 3)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 9)
	}
	mask := &Mask{Width: 3, Height: 3, Pix: []uint8{0, 50, 100, 128, 129, 150, 200, 250, 255}}

	once, err := Composite(img, mask)
	require.NoError(t, err)
	twice, err := Composite(once, mask)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}
