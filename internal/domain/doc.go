// Package domain models GFS (Global Forecast System) wind and
// precipitation forecast data.
//
// # Data Source
//
// Forecast grids come from the NOAA NOMADS OpenDAP service, dataset
// gfs_0p50 (0.5° global resolution), at https://nomads.ncep.noaa.gov/dods.
// GFS publishes four runs per day at the synoptic hours 00, 06, 12, and
// 18 UTC; a run's fields typically appear on the OpenDAP service about
// 5.5 hours after its nominal time.
//
// # Grid Conventions
//
// Upstream longitudes run 0–359.5° east with 720 columns; latitudes run
// -90–90° with 361 rows. Requests spanning the antimeridian are fetched as
// two halves and stitched into a single grid with signed longitudes
// (-180–180°). Data planes:
//
//	ugrd10m  – 10 m eastward wind component, m/s
//	vgrd10m  – 10 m northward wind component, m/s
//	pratesfc – surface precipitation rate, kg/m²/s (converted to mm/h)
//
// # Wind Direction
//
// Direction follows the meteorological convention: degrees clockwise from
// north, naming where the wind blows FROM. A northerly (v < 0 flow from
// the north) is 0°, an easterly is 90°. Computed as
// mod(270 − atan2(v, u)·180/π, 360). GFS surface fields carry no gust
// information, so Gusts is always zero.
//
// # Raster Packing
//
// For GPU particle renderers the u/v field is packed into an RGBA PNG:
// red is u and green is v, each normalized to 0–255 against the grid-wide
// min/max carried in [WindMetadata]; blue is zero and alpha is opaque.
// A degenerate range (max == min) maps the whole channel to 0. See
// [EncodeWindPNG].
package domain
