// Package scheduler drives periodic and on-demand forecast fetch cycles
// through the cache, deduplicating against existing history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/driftline/windcache/internal/cache"
	"github.com/driftline/windcache/internal/domain"
	"github.com/driftline/windcache/internal/noaa"
	"github.com/driftline/windcache/internal/observability"
)

// Cache key namespace. These are part of the wire format shared with the
// read-side API and must not change.
const (
	WindPointsKey          = "wind:points"
	WindPNGKey             = "wind:png"
	WindMetadataKey        = "wind:metadata"
	PrecipitationPointsKey = "precipitation:points"
	LastUpdateKey          = "wind:last_update"
)

// dedupTolerance mirrors the cache store's window: data within 2 hours of
// an existing snapshot is considered already covered.
const dedupTolerance = 2 * time.Hour

// Fetcher downloads forecast data from the upstream service.
type Fetcher interface {
	FetchWind(ctx context.Context, forecastOffset int, runAge int64, bounds domain.Bounds) (*noaa.WindResult, error)
	FetchPrecipitation(ctx context.Context, forecastOffset int, runAge int64, bounds domain.Bounds) (*noaa.PrecipitationResult, error)
}

// Announcer publishes stored-snapshot notifications.
type Announcer interface {
	Announce(ctx context.Context, ann domain.Announcement) error
}

// LastFetchInfo summarizes the most recent fetch cycle.
type LastFetchInfo struct {
	Success    bool   `json:"success"`
	Timestamp  string `json:"timestamp"`
	DataPoints int    `json:"dataPoints"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running   bool           `json:"running"`
	LastFetch *LastFetchInfo `json:"lastFetch"`
}

// Options tunes a Scheduler. Zero values pick production defaults.
type Options struct {
	Announcer     Announcer // nil disables announcements
	Clock         clockwork.Clock
	MaxHistory    int           // snapshot versions kept per data kind
	FetchInterval time.Duration // recurring latest-only cycle period
	TargetPause   time.Duration // politeness delay between full-history targets
}

// Scheduler orchestrates fetch cycles. One instance owns the recurring
// background job; status is safe to read concurrently.
type Scheduler struct {
	store     *cache.Store
	fetcher   Fetcher
	announcer Announcer
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	maxHistory  int
	interval    time.Duration
	targetPause time.Duration

	cron *gocron.Scheduler

	mu     sync.RWMutex
	status Status
}

// New creates a Scheduler.
func New(store *cache.Store, fetcher Fetcher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 20
	}
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 5 * time.Minute
	}

	return &Scheduler{
		store:       store,
		fetcher:     fetcher,
		announcer:   opts.Announcer,
		logger:      logger,
		metrics:     metrics,
		clock:       opts.Clock,
		maxHistory:  opts.MaxHistory,
		interval:    opts.FetchInterval,
		targetPause: opts.TargetPause,
	}
}

// Start marks the scheduler running, performs one full-history fetch
// synchronously, then launches the recurring latest-only cycle in the
// background. Stop cancels the recurring cycle.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting forecast scheduler",
		"interval", s.interval, "max_history", s.maxHistory)

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()
	s.metrics.SchedulerRunning.Set(1)

	if _, err := s.FetchHistorical24h(ctx); err != nil {
		s.logger.Error("initial 24h fetch failed", "error", err)
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 5
	}

	s.cron = gocron.NewScheduler(time.UTC)
	_, err := s.cron.Every(minutes).Minutes().Do(func() {
		if _, err := s.FetchLatest(context.Background()); err != nil {
			s.logger.Error("latest forecast fetch failed", "error", err)
		}
	})
	if err != nil {
		s.logger.Error("failed to schedule recurring fetch", "error", err)
		return
	}
	s.cron.StartAsync()

	s.logger.Info("forecast scheduler started")
}

// Stop cancels the recurring cycle. In-flight fetches complete.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}

	s.mu.Lock()
	s.status.Running = false
	s.mu.Unlock()
	s.metrics.SchedulerRunning.Set(0)
}

// Status returns a copy of the current scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// FetchHistorical24h covers the last 24 hours in 3-hour steps, fetching
// each target that is not already in cache history. Returns whether any
// target succeeded; the error is reserved for cache-layer faults on the
// summary write.
func (s *Scheduler) FetchHistorical24h(ctx context.Context) (bool, error) {
	start := s.clock.Now()
	targets := historicalTargets()

	s.logger.Info("starting 24h historical fetch", "targets", len(targets))
	for _, t := range targets {
		s.logger.Debug("fetch target",
			"run", s.runName(t.RunAge), "offset", t.Offset, "hours_back", t.HoursBack())
	}

	successCount, failureCount := 0, 0
	for i, target := range targets {
		ok, err := s.fetchAndStoreSingle(ctx, target.Offset, target.RunAge)
		if err != nil {
			s.logger.Error("target failed", "run_age", target.RunAge, "offset", target.Offset, "error", err)
		}
		if ok {
			successCount++
		} else {
			failureCount++
		}

		if i < len(targets)-1 {
			if !s.pause(ctx) {
				break
			}
		}
	}

	summary := map[string]any{
		"timestamp":      s.clock.Now().UTC().Format(time.RFC3339),
		"success":        successCount > 0,
		"successCount":   successCount,
		"failureCount":   failureCount,
		"totalForecasts": len(targets),
	}
	v, err := cache.Opaque(summary)
	if err != nil {
		return false, err
	}
	if err := s.store.SetValue(ctx, LastUpdateKey, v); err != nil {
		return false, err
	}

	s.setLastFetch(LastFetchInfo{
		Success:    successCount > 0,
		Timestamp:  s.clock.Now().UTC().Format(time.RFC3339),
		DataPoints: successCount,
	})
	s.metrics.FetchCycleDuration.Observe(s.clock.Now().Sub(start).Seconds())

	s.logger.Info("24h historical fetch complete",
		"success", successCount, "failures", failureCount)

	return successCount > 0, nil
}

// FetchLatest performs one fetch-and-store cycle for the current run at
// offset 0, unless that run is already in cache history.
func (s *Scheduler) FetchLatest(ctx context.Context) (bool, error) {
	currentRun := s.runName(0)

	entries, err := s.store.Indices(ctx, WindPointsKey)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.RunName == currentRun && e.ForecastOffset == 0 {
			s.logger.Info("latest forecast already cached", "run", currentRun)
			return true, nil
		}
	}

	s.logger.Info("fetching latest forecast", "run", currentRun)
	ok, err := s.fetchAndStoreSingle(ctx, 0, 0)
	if err != nil {
		return false, err
	}

	points := 0
	if ok {
		points = 1
	}
	s.setLastFetch(LastFetchInfo{
		Success:    ok,
		Timestamp:  s.clock.Now().UTC().Format(time.RFC3339),
		DataPoints: points,
	})

	return ok, nil
}

// fetchAndStoreSingle fetches one (offset, runAge) target and writes it to
// the cache. Upstream failures return (false, nil); the error return is
// reserved for cache-layer faults. Wind is written before precipitation is
// attempted, and a precipitation failure never fails the cycle.
func (s *Scheduler) fetchAndStoreSingle(ctx context.Context, forecastOffset int, runAge int64) (bool, error) {
	hoursBack := runAge - int64(forecastOffset)
	runName := s.runName(runAge)
	dataTime := s.clock.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	s.logger.Info("fetching forecast",
		"run", runName, "offset", forecastOffset, "hours_back", hoursBack)

	// Dedup against existing history before touching the network.
	entries, err := s.store.Indices(ctx, WindPointsKey)
	if err != nil {
		return false, err
	}
	if covered(entries, dataTime) {
		s.logger.Info("data already cached, skipping", "data_time", dataTime)
		s.metrics.TargetsSkipped.Inc()
		return true, nil
	}

	wind, ok := s.fetchWind(ctx, forecastOffset, runAge)
	if !ok {
		return false, nil
	}

	meta := cache.IndexMeta{
		RunName:        runName,
		DataTime:       dataTime,
		HoursBack:      float64(hoursBack),
		ForecastOffset: forecastOffset,
		RunAge:         runAge,
	}

	index, err := s.storeWind(ctx, wind, runName, dataTime, meta, runAge, forecastOffset)
	if err != nil {
		return false, err
	}

	s.announce(ctx, "wind", runName, dataTime, index, len(wind.Points))

	// Precipitation rides along; its failure never aborts the wind result.
	if err := s.fetchAndStorePrecipitation(ctx, forecastOffset, runAge, runName, dataTime, meta); err != nil {
		s.logger.Error("precipitation fetch failed", "run", runName, "offset", forecastOffset, "error", err)
	}

	return true, nil
}

func (s *Scheduler) fetchWind(ctx context.Context, forecastOffset int, runAge int64) (*noaa.WindResult, bool) {
	start := s.clock.Now()
	wind, err := s.fetcher.FetchWind(ctx, forecastOffset, runAge, domain.GlobalBounds)
	s.metrics.UpstreamRequestDuration.WithLabelValues("wind").Observe(s.clock.Now().Sub(start).Seconds())

	if err != nil {
		s.metrics.UpstreamRequests.WithLabelValues("wind", "error").Inc()
		s.logger.Error("wind fetch failed", "error", err)
		return nil, false
	}

	s.metrics.UpstreamRequests.WithLabelValues("wind", "success").Inc()
	s.logger.Info("wind fetch succeeded", "points", len(wind.Points))
	return wind, true
}

func (s *Scheduler) storeWind(ctx context.Context, wind *noaa.WindResult, runName string, dataTime time.Time, meta cache.IndexMeta, runAge int64, forecastOffset int) (uint32, error) {
	snapshot := domain.WindSnapshot{
		Timestamp:      s.clock.Now().UTC(),
		RunName:        runName,
		ForecastOffset: forecastOffset,
		RunAge:         runAge,
		DataTime:       dataTime,
		HoursBack:      runAge - int64(forecastOffset),
		Source:         wind.Metadata.Source,
		Resolution:     0.5,
		Region:         "Global",
		Bounds:         domain.GlobalBounds,
	}

	v, err := cache.Document(snapshot, wind.Points)
	if err != nil {
		return 0, err
	}

	index, err := s.store.SetValueIndexed(ctx, WindPointsKey, v, meta, s.maxHistory)
	if err != nil {
		return 0, err
	}
	s.metrics.SnapshotsStored.WithLabelValues("wind").Inc()

	if err := s.store.SetBinaryIndexed(ctx, WindPNGKey, wind.PNG, index); err != nil {
		return 0, err
	}

	mv, err := cache.Opaque(wind.Metadata)
	if err != nil {
		return 0, err
	}
	if err := s.store.SetValue(ctx, fmt.Sprintf("%s:%d", WindMetadataKey, index), mv); err != nil {
		return 0, err
	}
	// The plain metadata key always describes the current run.
	if runAge == 0 && forecastOffset == 0 {
		if err := s.store.SetValue(ctx, WindMetadataKey, mv); err != nil {
			return 0, err
		}
	}

	s.logger.Info("stored wind snapshot", "index", index, "points", len(wind.Points))
	return index, nil
}

func (s *Scheduler) fetchAndStorePrecipitation(ctx context.Context, forecastOffset int, runAge int64, runName string, dataTime time.Time, meta cache.IndexMeta) error {
	start := s.clock.Now()
	precip, err := s.fetcher.FetchPrecipitation(ctx, forecastOffset, runAge, domain.GlobalBounds)
	s.metrics.UpstreamRequestDuration.WithLabelValues("precipitation").Observe(s.clock.Now().Sub(start).Seconds())

	if err != nil {
		s.metrics.UpstreamRequests.WithLabelValues("precipitation", "error").Inc()
		return err
	}
	s.metrics.UpstreamRequests.WithLabelValues("precipitation", "success").Inc()

	snapshot := domain.PrecipitationSnapshot{
		Timestamp:      s.clock.Now().UTC(),
		RunName:        runName,
		ForecastOffset: forecastOffset,
		RunAge:         runAge,
		DataTime:       dataTime,
		HoursBack:      runAge - int64(forecastOffset),
		Source:         "NOAA GFS 0.5° via OpenDAP",
		Resolution:     0.5,
		Unit:           "mm/h",
		Bounds:         domain.GlobalBounds,
	}

	v, err := cache.Document(snapshot, precip.Points)
	if err != nil {
		return err
	}

	index, err := s.store.SetValueIndexed(ctx, PrecipitationPointsKey, v, meta, s.maxHistory)
	if err != nil {
		return err
	}
	s.metrics.SnapshotsStored.WithLabelValues("precipitation").Inc()

	s.logger.Info("stored precipitation snapshot", "index", index, "points", len(precip.Points))
	s.announce(ctx, "precipitation", runName, dataTime, index, len(precip.Points))
	return nil
}

func (s *Scheduler) announce(ctx context.Context, kind, runName string, dataTime time.Time, index uint32, points int) {
	if s.announcer == nil {
		return
	}
	err := s.announcer.Announce(ctx, domain.Announcement{
		Kind:       kind,
		RunName:    runName,
		DataTime:   dataTime,
		Index:      index,
		DataPoints: points,
		StoredAt:   s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("snapshot announcement failed", "kind", kind, "error", err)
	}
}

// runName is the GFS cycle label for a run runAge hours ago, e.g.
// "20260829_06Z".
func (s *Scheduler) runName(runAge int64) string {
	t := s.clock.Now().UTC().Add(-time.Duration(runAge) * time.Hour)
	return fmt.Sprintf("%s_%02dZ", t.Format("20060102"), (t.Hour()/6)*6)
}

func (s *Scheduler) setLastFetch(info LastFetchInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastFetch = &info
}

// pause waits the politeness delay between targets, returning false if the
// context was cancelled first.
func (s *Scheduler) pause(ctx context.Context) bool {
	if s.targetPause <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(s.targetPause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// covered reports whether an existing entry's data time falls within the
// dedup window of t.
func covered(entries []cache.IndexEntry, t time.Time) bool {
	for _, e := range entries {
		existing, err := time.Parse(time.RFC3339, e.DataTime)
		if err != nil {
			continue
		}
		diff := t.Sub(existing)
		if diff < 0 {
			diff = -diff
		}
		if diff < dedupTolerance {
			return true
		}
	}
	return false
}
