package noaa

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWindASCII = `ugrd10m, [1][2][3]
[0][0], 1.5, 2.5, 3.5
[0][1], -1.0, 0.0, 4.0

time, [1]
739852.0

lat, [2]
-90.0, -89.5

lon, [3]
0.0, 0.5, 1.0
`

func TestParseASCII(t *testing.T) {
	t.Run("single plane", func(t *testing.T) {
		grid, err := ParseASCII(sampleWindASCII, []string{"ugrd10m"})
		require.NoError(t, err)

		want := &Grid{
			Lats:   []float64{-90.0, -89.5},
			Lons:   []float64{0.0, 0.5, 1.0},
			Planes: map[string][]float64{"ugrd10m": {1.5, 2.5, 3.5, -1.0, 0.0, 4.0}},
		}
		assert.Empty(t, cmp.Diff(want, grid))
		assert.Equal(t, 3, grid.Width())
		assert.Equal(t, 2, grid.Height())
	})

	t.Run("two planes", func(t *testing.T) {
		data := `ugrd10m, [1][1][2]
[0][0], 1.0, 2.0

vgrd10m, [1][1][2]
[0][0], 3.0, 4.0

time, [1]
739852.0

lat, [1]
0.0

lon, [2]
0.0, 0.5
`
		grid, err := ParseASCII(data, []string{"ugrd10m", "vgrd10m"})

		require.NoError(t, err)
		assert.Equal(t, []float64{1.0, 2.0}, grid.Planes["ugrd10m"])
		assert.Equal(t, []float64{3.0, 4.0}, grid.Planes["vgrd10m"])
	})

	t.Run("repeated axis sections keep first occurrence", func(t *testing.T) {
		data := `lat, [2]
-90.0, -89.5

lon, [2]
0.0, 0.5

ugrd10m, [1][2][2]
[0][0], 1.0, 2.0
[0][1], 3.0, 4.0

lat, [2]
111.0, 222.0

lon, [2]
333.0, 444.0
`
		grid, err := ParseASCII(data, []string{"ugrd10m"})

		require.NoError(t, err)
		assert.Equal(t, []float64{-90.0, -89.5}, grid.Lats)
		assert.Equal(t, []float64{0.0, 0.5}, grid.Lons)
	})

	t.Run("axis values spanning multiple lines", func(t *testing.T) {
		data := `ugrd10m, [1][1][4]
[0][0], 1.0, 2.0, 3.0, 4.0

lat, [1]
0.0

lon, [4]
0.0, 0.5,
1.0, 1.5
`
		grid, err := ParseASCII(data, []string{"ugrd10m"})

		require.NoError(t, err)
		assert.Equal(t, []float64{0.0, 0.5, 1.0, 1.5}, grid.Lons)
	})

	t.Run("truncated plane", func(t *testing.T) {
		data := `ugrd10m, [1][2][3]
[0][0], 1.5, 2.5, 3.5
[0][1], -1.0, 0.0

lat, [2]
-90.0, -89.5

lon, [3]
0.0, 0.5, 1.0
`
		_, err := ParseASCII(data, []string{"ugrd10m"})

		assert.True(t, errors.Is(err, ErrMalformedResponse))
	})

	t.Run("missing axes", func(t *testing.T) {
		data := `ugrd10m, [1][1][2]
[0][0], 1.0, 2.0
`
		_, err := ParseASCII(data, []string{"ugrd10m"})

		assert.True(t, errors.Is(err, ErrMalformedResponse))
	})

	t.Run("empty response", func(t *testing.T) {
		_, err := ParseASCII("", []string{"ugrd10m"})

		assert.True(t, errors.Is(err, ErrMalformedResponse))
	})
}

func TestStripIndexPrefix(t *testing.T) {
	assert.Equal(t, "1.0, 2.0", stripIndexPrefix("[0][12], 1.0, 2.0"))
	assert.Equal(t, "no brackets here", stripIndexPrefix("no brackets here"))
	assert.Equal(t, "[0] only one", stripIndexPrefix("[0] only one"))
}

func TestExtractFloats(t *testing.T) {
	assert.Equal(t, []float64{1.5, -2.0, 3e2}, extractFloats("1.5, -2.0, 3e2"))
	assert.Empty(t, extractFloats("no, numbers, here"))
}
