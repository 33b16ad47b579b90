package noaa

import (
	"fmt"
	"sort"
	"time"
)

// readyThresholdHours is how long a GFS run typically needs before its
// fields are fully published on the OpenDAP service.
const readyThresholdHours = 5.5

// ForecastRun identifies one GFS publication cycle and how long ago it ran.
type ForecastRun struct {
	Date        string // YYYYMMDD
	Hour        string // 00, 06, 12, or 18
	Time        time.Time
	HoursWaited float64
}

// Name returns the run label stamped onto fetched data, e.g. "20260829 06Z".
func (r ForecastRun) Name() string {
	return fmt.Sprintf("%s %sZ", r.Date, r.Hour)
}

// AvailableRuns returns candidate forecast runs in fallback order: the last
// 8 cycles at 6-hour spacing, ranked so that runs old enough to be fully
// published come before runs that may still be uploading, most recent first
// within each group.
func AvailableRuns() []ForecastRun {
	now := clock.Now().UTC()

	var runs []ForecastRun
	for i := 0; i < 8; i++ {
		runTime := snapToCycle(now.Add(-time.Duration(i*6) * time.Hour))

		// Consecutive 6h steps can snap onto the same cycle near a boundary.
		if n := len(runs); n > 0 && runs[n-1].Time.Equal(runTime) {
			continue
		}

		runs = append(runs, newRun(runTime, now))
	}

	sort.SliceStable(runs, func(i, j int) bool {
		iReady := runs[i].HoursWaited >= readyThresholdHours
		jReady := runs[j].HoursWaited >= readyThresholdHours
		if iReady != jReady {
			return iReady
		}
		return runs[i].Time.After(runs[j].Time)
	})

	return runs
}

// HistoricalRuns returns the run covering runAge hours ago, followed by the
// cycles 6 hours either side of it as fallbacks. No readiness ranking is
// applied; candidates are tried primary, -6h, +6h.
func HistoricalRuns(runAge int64) []ForecastRun {
	now := clock.Now().UTC()
	primary := snapToCycle(now.Add(-time.Duration(runAge) * time.Hour))

	runs := []ForecastRun{newRun(primary, now)}
	for _, offset := range []time.Duration{-6 * time.Hour, 6 * time.Hour} {
		runs = append(runs, newRun(primary.Add(offset), now))
	}

	return runs
}

func newRun(runTime, now time.Time) ForecastRun {
	return ForecastRun{
		Date:        runTime.Format("20060102"),
		Hour:        fmt.Sprintf("%02d", runTime.Hour()),
		Time:        runTime,
		HoursWaited: now.Sub(runTime).Hours(),
	}
}

// snapToCycle rounds down to the nearest synoptic hour (00/06/12/18 UTC).
func snapToCycle(t time.Time) time.Time {
	cycleHour := (t.Hour() / 6) * 6
	return time.Date(t.Year(), t.Month(), t.Day(), cycleHour, 0, 0, 0, time.UTC)
}
