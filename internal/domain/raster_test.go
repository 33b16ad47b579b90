package domain

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWindPNG(t *testing.T) {
	t.Run("channels span the full range", func(t *testing.T) {
		u := []float64{-10.0, 0.0, 10.0}
		v := []float64{5.0, 10.0, 15.0}

		buf, err := EncodeWindPNG(3, 1, u, v, -10, 10, 5, 15)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, 3, img.Bounds().Dx())
		assert.Equal(t, 1, img.Bounds().Dy())

		r, g, b, a := img.At(0, 0).RGBA()
		assert.Equal(t, uint32(0), r>>8)
		assert.Equal(t, uint32(0), g>>8)
		assert.Equal(t, uint32(0), b>>8)
		assert.Equal(t, uint32(255), a>>8)

		r, g, _, _ = img.At(1, 0).RGBA()
		assert.Equal(t, uint32(128), r>>8)
		assert.Equal(t, uint32(128), g>>8)

		r, g, _, _ = img.At(2, 0).RGBA()
		assert.Equal(t, uint32(255), r>>8)
		assert.Equal(t, uint32(255), g>>8)
	})

	t.Run("degenerate range maps to zero", func(t *testing.T) {
		u := []float64{7.0, 7.0}
		v := []float64{1.0, 2.0}

		buf, err := EncodeWindPNG(2, 1, u, v, 7, 7, 1, 2)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(buf))
		require.NoError(t, err)

		r, _, _, _ := img.At(0, 0).RGBA()
		assert.Equal(t, uint32(0), r>>8)
		r, _, _, _ = img.At(1, 0).RGBA()
		assert.Equal(t, uint32(0), r>>8)
	})

	t.Run("sample count mismatch", func(t *testing.T) {
		_, err := EncodeWindPNG(2, 2, []float64{1, 2, 3}, []float64{1, 2, 3, 4}, 0, 1, 0, 1)
		assert.Error(t, err)
	})
}

func TestNormalizeChannel(t *testing.T) {
	assert.Equal(t, uint8(0), normalizeChannel(-5, 0, 10))
	assert.Equal(t, uint8(255), normalizeChannel(15, 0, 10))
	assert.Equal(t, uint8(128), normalizeChannel(5, 0, 10))
	assert.Equal(t, uint8(0), normalizeChannel(3, 3, 3))
}
