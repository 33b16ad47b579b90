package domain

import (
	"math"
	"time"
)

// WindPoint is one grid sample of the 10m wind field. Speed and direction
// are derived from the u/v components; gusts are not published on the GFS
// OpenDAP grids and are always zero.
type WindPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	U         float64 `json:"u"`
	V         float64 `json:"v"`
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"`
	Gusts     float64 `json:"gusts"`
}

// NewWindPoint derives speed and meteorological direction from the vector
// components.
func NewWindPoint(lat, lon, u, v float64) WindPoint {
	speed := math.Sqrt(u*u + v*v)
	direction := math.Mod(270.0-math.Atan2(v, u)*180.0/math.Pi, 360.0)

	return WindPoint{
		Lat:       lat,
		Lon:       lon,
		U:         u,
		V:         v,
		Speed:     speed,
		Direction: direction,
		Gusts:     0,
	}
}

// Bounds is the lat/lon box a snapshot covers, each as [min, max].
type Bounds struct {
	Lat [2]float64 `json:"lat"`
	Lon [2]float64 `json:"lon"`
}

// GlobalBounds covers the whole grid.
var GlobalBounds = Bounds{Lat: [2]float64{-90, 90}, Lon: [2]float64{-180, 180}}

// WindMetadata describes the raster image companion of a wind snapshot,
// in the shape the windgl frontend consumes.
type WindMetadata struct {
	Source string   `json:"source"`
	Date   string   `json:"date"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	UMin   float64  `json:"uMin"`
	UMax   float64  `json:"uMax"`
	VMin   float64  `json:"vMin"`
	VMax   float64  `json:"vMax"`
	Tiles  []string `json:"tiles"`
}

// WindSnapshot is the cache-resident header of one stored wind forecast.
// The point list is stored alongside it and may be chunked separately, so
// it is not part of this struct.
type WindSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	RunName        string    `json:"runName"`
	ForecastOffset int       `json:"forecastOffset"`
	RunAge         int64     `json:"runAge"`
	DataTime       time.Time `json:"dataTime"`
	HoursBack      int64     `json:"hoursBack"`
	Source         string    `json:"source"`
	Resolution     float64   `json:"resolution"`
	Region         string    `json:"region"`
	Bounds         Bounds    `json:"bounds"`
}
