package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWindPoint(t *testing.T) {
	t.Run("speed from components", func(t *testing.T) {
		p := NewWindPoint(10.0, 20.0, 3.0, 4.0)

		assert.Equal(t, 10.0, p.Lat)
		assert.Equal(t, 20.0, p.Lon)
		assert.InDelta(t, 5.0, p.Speed, 1e-9)
		assert.Equal(t, 0.0, p.Gusts)
	})

	t.Run("meteorological direction", func(t *testing.T) {
		// Direction is where the wind comes FROM: a southerly flow
		// (v > 0) blows from 180°.
		cases := []struct {
			name string
			u, v float64
			want float64
		}{
			{"from north", 0, -1, 0},
			{"from east", -1, 0, 90},
			{"from south", 0, 1, 180},
			{"from west", 1, 0, 270},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				p := NewWindPoint(0, 0, tc.u, tc.v)
				assert.InDelta(t, tc.want, p.Direction, 1e-9)
			})
		}
	})

	t.Run("calm air", func(t *testing.T) {
		p := NewWindPoint(0, 0, 0, 0)
		assert.Equal(t, 0.0, p.Speed)
	})
}
