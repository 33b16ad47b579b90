// Command mockdap serves synthetic GFS grids in the OpenDAP ASCII format,
// so the service can be run locally without reaching the NOAA servers.
// Wind components follow a smooth sinusoidal field and precipitation rate
// is a band around the equator, which makes rendered rasters easy to eyeball.
//
// Usage:
//
//	go run ./cmd/mockdap -addr :8081
//	UPSTREAM_BASE_URL=http://localhost:8081 go run ./cmd/windcache
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rangeRe matches one [start:stride:end] constraint group.
var rangeRe = regexp.MustCompile(`\[(\d+)(?::\d+)?:(\d+)\]`)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gfs_0p50/", func(w http.ResponseWriter, r *http.Request) {
		handleDataset(w, r, logger)
	})

	logger.Info("mock opendap server listening", "addr", *addr)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// handleDataset answers any gfs_0p50 dataset request by echoing back the
// requested grid shape filled with synthetic values.
func handleDataset(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	query := r.URL.RawQuery
	if !strings.HasSuffix(r.URL.Path, ".ascii") || query == "" {
		http.NotFound(w, r)
		return
	}

	var sb strings.Builder
	var lats, lons []float64

	for _, part := range strings.Split(query, ",") {
		name, groups := parseProjection(part)
		if name == "" {
			continue
		}

		switch name {
		case "lat":
			lats = axis(groups, -90)
		case "lon":
			lons = axis(groups, 0)
		default:
			// A plane request carries [time][lat][lon]; axes follow in
			// the same query, so remember the shape and render later.
			if len(groups) == 3 {
				planeLats := axis(groups[1:2], -90)
				planeLons := axis(groups[2:3], 0)
				writePlane(&sb, name, planeLats, planeLons)
			}
		}
	}

	sb.WriteString("time, [1]\n739852.0\n\n")
	writeAxis(&sb, "lat", lats)
	writeAxis(&sb, "lon", lons)

	logger.Info("served synthetic grid", "path", r.URL.Path, "lats", len(lats), "lons", len(lons))

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, sb.String())
}

// parseProjection splits "name[a:1:b][c:1:d]..." into the variable name and
// its index ranges.
func parseProjection(part string) (string, [][2]int) {
	bracket := strings.Index(part, "[")
	if bracket <= 0 {
		return "", nil
	}
	name := part[:bracket]

	var groups [][2]int
	for _, m := range rangeRe.FindAllStringSubmatch(part, -1) {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		groups = append(groups, [2]int{start, end})
	}
	return name, groups
}

// axis expands the first index range into 0.5-degree coordinate values
// anchored at origin.
func axis(groups [][2]int, origin float64) []float64 {
	if len(groups) == 0 {
		return nil
	}
	start, end := groups[0][0], groups[0][1]

	values := make([]float64, 0, end-start+1)
	for i := start; i <= end; i++ {
		values = append(values, origin+float64(i)*0.5)
	}
	return values
}

func writePlane(sb *strings.Builder, name string, lats, lons []float64) {
	fmt.Fprintf(sb, "%s, [1][%d][%d]\n", name, len(lats), len(lons))
	for row, lat := range lats {
		fmt.Fprintf(sb, "[0][%d]", row)
		for _, lon := range lons {
			fmt.Fprintf(sb, ", %.2f", sample(name, lat, lon))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeAxis(sb *strings.Builder, name string, values []float64) {
	fmt.Fprintf(sb, "%s, [%d]\n", name, len(values))
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	sb.WriteString(strings.Join(parts, ", ") + "\n\n")
}

// sample produces a deterministic synthetic value for one grid cell.
func sample(name string, lat, lon float64) float64 {
	latRad, lonRad := lat*math.Pi/180, lon*math.Pi/180

	switch name {
	case "ugrd10m":
		return 15 * math.Sin(lonRad*2) * math.Cos(latRad)
	case "vgrd10m":
		return 10 * math.Cos(lonRad*3) * math.Cos(latRad)
	case "pratesfc":
		// Rain band near the equator, in kg/m²/s.
		band := math.Exp(-math.Pow(lat/15, 2))
		return 0.002 * band * (0.5 + 0.5*math.Sin(lonRad*4))
	default:
		return 0
	}
}
