package matte

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "#ffffff", want: color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{in: "00ff80", want: color.NRGBA{G: 255, B: 128, A: 255}},
		{in: "#f0a", want: color.NRGBA{R: 255, B: 170, A: 255}},
		{in: "#10203040", want: color.NRGBA{R: 16, G: 32, B: 48, A: 64}},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplaceBackground(t *testing.T) {
	fg := NewRaster(2, 1, 4)
	copy(fg.Pix, []uint8{10, 20, 30, 255, 40, 50, 60, 0})

	got, err := ReplaceBackground(fg, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30, 255, 255, 0, 0, 255}, got.Pix)
}

func TestReplaceBackgroundImage(t *testing.T) {
	fg := NewRaster(4, 4, 4)
	setAlpha(fg, 1, 1, 255)

	bg := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for i := 0; i < len(bg.Pix); i += 4 {
		copy(bg.Pix[i:], []uint8{0, 0, 200, 255})
	}

	got, err := ReplaceBackgroundImage(fg, bg)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Width)
	assert.Equal(t, 4, got.Height)

	fgPix := got.Pix[(1*4+1)*4:]
	assert.Equal(t, []uint8{0, 0, 0, 255}, fgPix[:4])
	bgPix := got.Pix[:4]
	assert.InDelta(t, 200, int(bgPix[2]), 1)
	assert.Equal(t, uint8(255), bgPix[3])
}

func TestReplaceBackground_RequiresAlpha(t *testing.T) {
	_, err := ReplaceBackground(NewRaster(2, 2, 3), color.White)
	require.ErrorIs(t, err, ErrInvalidChannelCount)

	_, err = ReplaceBackgroundImage(NewRaster(2, 2, 4), nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
