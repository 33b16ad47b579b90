package noaa

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Grid is a decoded OpenDAP ASCII response: latitude and longitude axes
// plus one flat row-major data plane per requested variable.
type Grid struct {
	Lats   []float64
	Lons   []float64
	Planes map[string][]float64
}

// Width returns the longitude axis length.
func (g *Grid) Width() int { return len(g.Lons) }

// Height returns the latitude axis length.
func (g *Grid) Height() int { return len(g.Lats) }

// ParseASCII decodes an OpenDAP ASCII response containing the named data
// planes plus lat/lon axes. The response interleaves labelled sections:
// 3-D plane rows carry a bracketed grid-index prefix, axis sections are
// plain float lists, and the lat/lon axes can appear a second time as index
// annotations of a later variable (only the first occurrence is data).
//
// Every axis and plane must be non-empty and each plane must hold exactly
// height×width samples; anything less is a truncated grid and fails with
// ErrMalformedResponse.
func ParseASCII(data string, planes []string) (*Grid, error) {
	grid := &Grid{Planes: make(map[string][]float64, len(planes))}

	current := ""   // section currently being accumulated
	inData := false // axis data or continuation lines are accepted
	seen := map[string]bool{}

	isPlane := func(name string) bool {
		for _, p := range planes {
			if p == name {
				return true
			}
		}
		return false
	}

	for _, line := range strings.Split(data, "\n") {
		trimmed := strings.TrimSpace(line)

		if name, ok := sectionHeader(trimmed, planes); ok {
			if name == "time" || seen[name] {
				current, inData = "", false
				continue
			}
			seen[name] = true
			current = name
			// Plane data only arrives on bracket-prefixed rows; axes start
			// immediately on the following lines.
			inData = !isPlane(name)
			continue
		}

		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			inData = true
			if isPlane(current) {
				grid.Planes[current] = append(grid.Planes[current], extractFloats(stripIndexPrefix(trimmed))...)
			}
			continue
		}

		if inData && !startsAlphabetic(trimmed) {
			nums := extractFloats(trimmed)
			switch {
			case current == "lat":
				grid.Lats = append(grid.Lats, nums...)
			case current == "lon":
				grid.Lons = append(grid.Lons, nums...)
			case isPlane(current):
				grid.Planes[current] = append(grid.Planes[current], nums...)
			}
		}
	}

	if err := grid.validate(planes); err != nil {
		return nil, err
	}

	return grid, nil
}

func (g *Grid) validate(planes []string) error {
	if len(g.Lats) == 0 || len(g.Lons) == 0 {
		return fmt.Errorf("%w: lats=%d lons=%d", ErrMalformedResponse, len(g.Lats), len(g.Lons))
	}

	want := len(g.Lats) * len(g.Lons)
	for _, p := range planes {
		if got := len(g.Planes[p]); got != want {
			return fmt.Errorf("%w: plane %s has %d samples, grid is %d×%d",
				ErrMalformedResponse, p, got, len(g.Lats), len(g.Lons))
		}
	}

	return nil
}

// sectionHeader reports whether the line introduces a named section: one of
// the requested planes, the lat/lon axes, or the time axis.
func sectionHeader(trimmed string, planes []string) (string, bool) {
	for _, name := range []string{"lat", "lon", "time"} {
		if strings.HasPrefix(trimmed, name+",") || strings.HasPrefix(trimmed, name+"[") {
			return name, true
		}
	}
	for _, p := range planes {
		if strings.HasPrefix(trimmed, p+",") {
			return p, true
		}
	}
	return "", false
}

// stripIndexPrefix removes the leading "[i][j]," grid-index tuple from a
// plane data row. Lines without the expected prefix are returned unchanged.
func stripIndexPrefix(line string) string {
	rest := line
	for i := 0; i < 2; i++ {
		j := strings.Index(rest, "]")
		if j < 0 {
			return line
		}
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest[j+1:]), ","))
	}
	return rest
}

// extractFloats pulls every parseable float from a comma/whitespace
// separated list, skipping anything that is not a number.
func extractFloats(text string) []float64 {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	nums := make([]float64, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			nums = append(nums, v)
		}
	}
	return nums
}

func startsAlphabetic(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}
