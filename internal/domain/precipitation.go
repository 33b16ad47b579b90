package domain

import "time"

// PrecipitationPoint is one grid sample of surface precipitation rate,
// converted from the upstream kg/m²/s to mm/h.
type PrecipitationPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Rate float64 `json:"rate"`
}

// MMPerHourFactor converts the upstream precipitation-rate unit (kg/m²/s) to mm/h.
const MMPerHourFactor = 3600.0

// PrecipitationSnapshot is the cache-resident header of one stored
// precipitation forecast, mirroring WindSnapshot.
type PrecipitationSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	RunName        string    `json:"runName"`
	ForecastOffset int       `json:"forecastOffset"`
	RunAge         int64     `json:"runAge"`
	DataTime       time.Time `json:"dataTime"`
	HoursBack      int64     `json:"hoursBack"`
	Source         string    `json:"source"`
	Resolution     float64   `json:"resolution"`
	Unit           string    `json:"unit"`
	Bounds         Bounds    `json:"bounds"`
}
