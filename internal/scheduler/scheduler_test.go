package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/windcache/internal/cache"
	"github.com/driftline/windcache/internal/domain"
	"github.com/driftline/windcache/internal/noaa"
	"github.com/driftline/windcache/internal/observability"
)

var testNow = time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC)

// memKV is an in-memory cache.KV for tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) SetEx(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type fetchCall struct {
	Offset int
	RunAge int64
}

// fakeFetcher returns canned single-point results and records every call.
type fakeFetcher struct {
	mu          sync.Mutex
	windCalls   []fetchCall
	precipCalls []fetchCall
	windErr     error
	precipErr   error
}

func (f *fakeFetcher) FetchWind(_ context.Context, offset int, runAge int64, _ domain.Bounds) (*noaa.WindResult, error) {
	f.mu.Lock()
	f.windCalls = append(f.windCalls, fetchCall{offset, runAge})
	f.mu.Unlock()

	if f.windErr != nil {
		return nil, f.windErr
	}
	return &noaa.WindResult{
		Points:   []domain.WindPoint{domain.NewWindPoint(0, 0, 3, 4)},
		PNG:      []byte{0x89, 'P', 'N', 'G'},
		Metadata: domain.WindMetadata{Width: 1, Height: 1},
	}, nil
}

func (f *fakeFetcher) FetchPrecipitation(_ context.Context, offset int, runAge int64, _ domain.Bounds) (*noaa.PrecipitationResult, error) {
	f.mu.Lock()
	f.precipCalls = append(f.precipCalls, fetchCall{offset, runAge})
	f.mu.Unlock()

	if f.precipErr != nil {
		return nil, f.precipErr
	}
	return &noaa.PrecipitationResult{
		Points: []domain.PrecipitationPoint{{Lat: 0, Lon: 0, Rate: 1.5}},
	}, nil
}

func (f *fakeFetcher) windCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windCalls)
}

type fakeAnnouncer struct {
	mu            sync.Mutex
	announcements []domain.Announcement
}

func (a *fakeAnnouncer) Announce(_ context.Context, ann domain.Announcement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announcements = append(a.announcements, ann)
	return nil
}

func newTestScheduler(t *testing.T, fetcher Fetcher, announcer Announcer) (*Scheduler, *cache.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clockwork.NewFakeClockAt(testNow)
	store := cache.NewStore(newMemKV(), clk, logger)

	sched := New(store, fetcher, logger, observability.NewMetricsForTesting(), Options{
		Announcer:  announcer,
		Clock:      clk,
		MaxHistory: 20,
	})
	return sched, store
}

func TestFetchHistorical24h(t *testing.T) {
	t.Run("stores a snapshot per target", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		sched, store := newTestScheduler(t, fetcher, nil)

		ok, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 8, fetcher.windCallCount())

		windEntries, err := store.Indices(context.Background(), WindPointsKey)
		require.NoError(t, err)
		assert.Len(t, windEntries, 8)

		precipEntries, err := store.Indices(context.Background(), PrecipitationPointsKey)
		require.NoError(t, err)
		assert.Len(t, precipEntries, 8)

		// The summary document reports the cycle outcome.
		raw, ok2, err := store.GetValue(context.Background(), LastUpdateKey)
		require.NoError(t, err)
		require.True(t, ok2)

		var summary struct {
			Success        bool `json:"success"`
			SuccessCount   int  `json:"successCount"`
			FailureCount   int  `json:"failureCount"`
			TotalForecasts int  `json:"totalForecasts"`
		}
		require.NoError(t, json.Unmarshal(raw, &summary))
		assert.True(t, summary.Success)
		assert.Equal(t, 8, summary.SuccessCount)
		assert.Equal(t, 0, summary.FailureCount)
		assert.Equal(t, 8, summary.TotalForecasts)

		status := sched.Status()
		require.NotNil(t, status.LastFetch)
		assert.True(t, status.LastFetch.Success)
	})

	t.Run("second pass skips covered targets", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		sched, _ := newTestScheduler(t, fetcher, nil)

		_, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)
		require.Equal(t, 8, fetcher.windCallCount())

		ok, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 8, fetcher.windCallCount(), "no new upstream requests")
	})

	t.Run("upstream failure is not a cache error", func(t *testing.T) {
		fetcher := &fakeFetcher{windErr: errors.New("dataset unavailable")}
		sched, store := newTestScheduler(t, fetcher, nil)

		ok, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)

		entries, err := store.Indices(context.Background(), WindPointsKey)
		require.NoError(t, err)
		assert.Empty(t, entries)

		status := sched.Status()
		require.NotNil(t, status.LastFetch)
		assert.False(t, status.LastFetch.Success)
	})

	t.Run("precipitation failure keeps the wind snapshot", func(t *testing.T) {
		fetcher := &fakeFetcher{precipErr: errors.New("plane missing")}
		sched, store := newTestScheduler(t, fetcher, nil)

		ok, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		windEntries, err := store.Indices(context.Background(), WindPointsKey)
		require.NoError(t, err)
		assert.Len(t, windEntries, 8)

		precipEntries, err := store.Indices(context.Background(), PrecipitationPointsKey)
		require.NoError(t, err)
		assert.Empty(t, precipEntries)
	})

	t.Run("writes raster and metadata alongside points", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		sched, store := newTestScheduler(t, fetcher, nil)

		_, err := sched.FetchHistorical24h(context.Background())
		require.NoError(t, err)

		png, ok, err := store.GetBinary(context.Background(), WindPNGKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png)

		// The current run (run age 6, offset 6) refreshes the plain
		// metadata mirror only when it is the 0/0 latest fetch, so only
		// the versioned keys exist after a historical pass.
		_, ok, err = store.GetValue(context.Background(), WindMetadataKey+":0")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestFetchLatest(t *testing.T) {
	t.Run("fetches once then reuses the cached run", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		sched, _ := newTestScheduler(t, fetcher, nil)

		ok, err := sched.FetchLatest(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, fetcher.windCallCount())
		assert.Equal(t, []fetchCall{{Offset: 0, RunAge: 0}}, fetcher.windCalls)

		ok, err = sched.FetchLatest(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, fetcher.windCallCount(), "current run already cached")
	})

	t.Run("stores the plain metadata mirror", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		sched, store := newTestScheduler(t, fetcher, nil)

		_, err := sched.FetchLatest(context.Background())
		require.NoError(t, err)

		_, ok, err := store.GetValue(context.Background(), WindMetadataKey)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestAnnouncements(t *testing.T) {
	fetcher := &fakeFetcher{}
	announcer := &fakeAnnouncer{}
	sched, _ := newTestScheduler(t, fetcher, announcer)

	_, err := sched.FetchLatest(context.Background())
	require.NoError(t, err)

	require.Len(t, announcer.announcements, 2)
	assert.Equal(t, "wind", announcer.announcements[0].Kind)
	assert.Equal(t, "precipitation", announcer.announcements[1].Kind)
	assert.Equal(t, 1, announcer.announcements[0].DataPoints)
	assert.Equal(t, "20260829_12Z", announcer.announcements[0].RunName)
}

func TestRunName(t *testing.T) {
	sched, _ := newTestScheduler(t, &fakeFetcher{}, nil)

	// 13:00Z snaps to the 12Z cycle; 6 hours earlier lands on 06Z.
	assert.Equal(t, "20260829_12Z", sched.runName(0))
	assert.Equal(t, "20260829_06Z", sched.runName(6))
	// Crossing midnight rolls the date back.
	assert.Equal(t, "20260828_12Z", sched.runName(24))
}
