package noaa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/driftline/windcache/internal/domain"
)

const (
	// GFS 0.5° grid: longitudes run 0–359.5° upstream, 720 columns.
	resolutionDegrees = 0.5
	lastLonIndex      = 719

	sourceLabel = "NOAA GFS 0.5° via OpenDAP"
)

var (
	windPlanes   = []string{"ugrd10m", "vgrd10m"}
	precipPlanes = []string{"pratesfc"}
)

// WindResult is one fetched wind forecast: the point list, the windgl
// raster image, and its metadata, stamped with the run that produced it.
type WindResult struct {
	Points         []domain.WindPoint
	PNG            []byte
	Metadata       domain.WindMetadata
	RunName        string
	DataTime       time.Time
	ForecastOffset int
}

// PrecipitationResult is one fetched precipitation forecast.
type PrecipitationResult struct {
	Points         []domain.PrecipitationPoint
	RunName        string
	DataTime       time.Time
	ForecastOffset int
}

// Client fetches GFS forecast grids from the NOAA OpenDAP service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an OpenDAP client. Every request carries the given
// timeout; a timed-out request is treated like any other failed attempt and
// triggers the run fallback loop.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchWind downloads the 10m wind field for the given forecast offset,
// trying candidate runs in fallback order until one succeeds. runAge > 0
// targets a specific historical run instead of the freshest available one.
func (c *Client) FetchWind(ctx context.Context, forecastOffset int, runAge int64, bounds domain.Bounds) (*WindResult, error) {
	var result *WindResult

	run, err := c.tryRuns(ctx, "wind", runAge, func(ctx context.Context, run ForecastRun) error {
		grid, err := c.fetchGrid(ctx, run, forecastOffset, bounds, windPlanes)
		if err != nil {
			return err
		}
		result, err = buildWindResult(grid)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.RunName = run.Name()
	result.DataTime = run.Time
	result.ForecastOffset = forecastOffset
	return result, nil
}

// FetchPrecipitation downloads the surface precipitation-rate field with
// the same run selection and fallback behavior as FetchWind.
func (c *Client) FetchPrecipitation(ctx context.Context, forecastOffset int, runAge int64, bounds domain.Bounds) (*PrecipitationResult, error) {
	var result *PrecipitationResult

	run, err := c.tryRuns(ctx, "precipitation", runAge, func(ctx context.Context, run ForecastRun) error {
		grid, err := c.fetchGrid(ctx, run, forecastOffset, bounds, precipPlanes)
		if err != nil {
			return err
		}
		result = buildPrecipitationResult(grid)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.RunName = run.Name()
	result.DataTime = run.Time
	result.ForecastOffset = forecastOffset
	return result, nil
}

// tryRuns attempts each candidate run in order until fetch succeeds,
// returning the run that worked. All failures surface the last error.
func (c *Client) tryRuns(ctx context.Context, kind string, runAge int64, fetch func(context.Context, ForecastRun) error) (ForecastRun, error) {
	var runs []ForecastRun
	if runAge > 0 {
		c.logger.Info("targeting historical run", "kind", kind, "run_age_hours", runAge)
		runs = HistoricalRuns(runAge)
	} else {
		runs = AvailableRuns()
	}

	for i, run := range runs {
		c.logger.Debug("candidate run", "rank", i+1, "run", run.Name(), "hours_waited", run.HoursWaited)
	}

	var lastErr error
	for _, run := range runs {
		if err := fetch(ctx, run); err != nil {
			c.logger.Warn("run fetch failed", "kind", kind, "run", run.Name(), "error", err)
			lastErr = err
			continue
		}
		c.logger.Info("run fetch succeeded", "kind", kind, "run", run.Name())
		return run, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no candidate runs", ErrRequestFailed)
	}
	return ForecastRun{}, lastErr
}

// fetchGrid downloads and parses the requested planes for one run. A
// bounding box starting west of the antimeridian (lonMin < 0) is fetched as
// two halves in the upstream 0–359.5° convention and stitched back into one
// signed-longitude grid.
func (c *Client) fetchGrid(ctx context.Context, run ForecastRun, forecastOffset int, bounds domain.Bounds, planes []string) (*Grid, error) {
	latStart := int(math.Floor((bounds.Lat[0] + 90) / resolutionDegrees))
	latEnd := int(math.Floor((bounds.Lat[1] + 90) / resolutionDegrees))

	if bounds.Lon[0] >= 0 {
		lonStart := int(math.Floor(bounds.Lon[0] / resolutionDegrees))
		lonEnd := int(math.Floor(bounds.Lon[1] / resolutionDegrees))
		return c.fetchHalf(ctx, run, forecastOffset, latStart, latEnd, lonStart, lonEnd, planes)
	}

	westStart := int(math.Floor((360 + bounds.Lon[0]) / resolutionDegrees))
	west, err := c.fetchHalf(ctx, run, forecastOffset, latStart, latEnd, westStart, lastLonIndex, planes)
	if err != nil {
		return nil, fmt.Errorf("west half: %w", err)
	}

	eastEnd := int(math.Floor(bounds.Lon[1] / resolutionDegrees))
	east, err := c.fetchHalf(ctx, run, forecastOffset, latStart, latEnd, 0, eastEnd, planes)
	if err != nil {
		return nil, fmt.Errorf("east half: %w", err)
	}

	return stitch(west, east, planes)
}

// fetchHalf issues one OpenDAP request and parses the response.
func (c *Client) fetchHalf(ctx context.Context, run ForecastRun, forecastOffset, latStart, latEnd, lonStart, lonEnd int, planes []string) (*Grid, error) {
	url := c.datasetURL(run) + constraint(planes, forecastOffset, latStart, latEnd, lonStart, lonEnd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRequestFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}

	ascii := string(body)
	if isErrorDocument(ascii) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetUnavailable, extractErrorMessage(ascii))
	}

	return ParseASCII(ascii, planes)
}

func (c *Client) datasetURL(run ForecastRun) string {
	return fmt.Sprintf("%s/gfs_0p50/gfs%s/gfs_0p50_%sz", c.baseURL, run.Date, run.Hour)
}

// constraint builds the OpenDAP ASCII projection: every plane as
// var[t][latRange][lonRange], then the lat and lon axes.
func constraint(planes []string, t, latStart, latEnd, lonStart, lonEnd int) string {
	var sb strings.Builder
	sb.WriteString(".ascii?")
	for _, p := range planes {
		fmt.Fprintf(&sb, "%s[%d:1:%d][%d:1:%d][%d:1:%d],", p, t, t, latStart, latEnd, lonStart, lonEnd)
	}
	fmt.Fprintf(&sb, "lat[%d:1:%d],lon[%d:%d]", latStart, latEnd, lonStart, lonEnd)
	return sb.String()
}

// stitch joins a west half (remapped to signed longitudes) and an east half
// into one contiguous grid: per latitude row, west samples then east
// samples, for every plane. The latitude axis is taken from the west half.
func stitch(west, east *Grid, planes []string) (*Grid, error) {
	if west.Height() != east.Height() {
		return nil, fmt.Errorf("%w: stitched halves disagree on height (%d vs %d)",
			ErrMalformedResponse, west.Height(), east.Height())
	}

	lons := make([]float64, 0, west.Width()+east.Width())
	for _, lon := range west.Lons {
		lons = append(lons, lon-360)
	}
	lons = append(lons, east.Lons...)

	combined := &Grid{
		Lats:   west.Lats,
		Lons:   lons,
		Planes: make(map[string][]float64, len(planes)),
	}

	for _, p := range planes {
		merged := make([]float64, 0, len(west.Planes[p])+len(east.Planes[p]))
		for row := 0; row < west.Height(); row++ {
			merged = append(merged, west.Planes[p][row*west.Width():(row+1)*west.Width()]...)
			merged = append(merged, east.Planes[p][row*east.Width():(row+1)*east.Width()]...)
		}
		combined.Planes[p] = merged
	}

	return combined, nil
}

func buildWindResult(grid *Grid) (*WindResult, error) {
	u := grid.Planes["ugrd10m"]
	v := grid.Planes["vgrd10m"]
	width, height := grid.Width(), grid.Height()

	uMin, uMax := minMax(u)
	vMin, vMax := minMax(v)

	png, err := domain.EncodeWindPNG(width, height, u, v, uMin, uMax, vMin, vMax)
	if err != nil {
		return nil, err
	}

	points := make([]domain.WindPoint, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			points = append(points, domain.NewWindPoint(grid.Lats[y], grid.Lons[x], u[i], v[i]))
		}
	}

	return &WindResult{
		Points: points,
		PNG:    png,
		Metadata: domain.WindMetadata{
			Source: sourceLabel,
			Date:   clock.Now().UTC().Format(time.RFC3339),
			Width:  width,
			Height: height,
			UMin:   uMin,
			UMax:   uMax,
			VMin:   vMin,
			VMax:   vMax,
			Tiles:  []string{"/api/windgl/wind.png"},
		},
	}, nil
}

func buildPrecipitationResult(grid *Grid) *PrecipitationResult {
	rates := grid.Planes["pratesfc"]
	width, height := grid.Width(), grid.Height()

	points := make([]domain.PrecipitationPoint, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			points = append(points, domain.PrecipitationPoint{
				Lat:  grid.Lats[y],
				Lon:  grid.Lons[x],
				Rate: rates[y*width+x] * domain.MMPerHourFactor,
			})
		}
	}

	return &PrecipitationResult{Points: points}
}

func minMax(values []float64) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// isErrorDocument detects an HTML/XML error page masquerading as data.
func isErrorDocument(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<") ||
		strings.Contains(body, "<!DOCTYPE") ||
		strings.Contains(body, "<html")
}

// extractErrorMessage pulls the human-readable message out of an OpenDAP
// error page (the first bolded span).
func extractErrorMessage(html string) string {
	start := strings.Index(html, "<b>")
	if start < 0 {
		return "unknown OpenDAP error"
	}
	rest := html[start+len("<b>"):]
	end := strings.Index(rest, "</b>")
	if end < 0 {
		return "unknown OpenDAP error"
	}
	return strings.TrimSpace(rest[:end])
}
