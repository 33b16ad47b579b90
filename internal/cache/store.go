package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxPayloadBytes is the ceiling for a single cached payload; anything
// larger is split across chunk keys.
const maxPayloadBytes = 8 * 1024 * 1024

// dedupTolerance: two snapshots within this window of each other describe
// the same physical forecast time and share one index entry.
const dedupTolerance = 2 * time.Hour

// IndexEntry is one historical version record inside a bounded-depth
// history list. JSON field names are part of the wire format.
type IndexEntry struct {
	Index          uint32  `json:"index"`
	Timestamp      string  `json:"timestamp"`
	DataPoints     int     `json:"dataPoints"`
	RunName        string  `json:"runName"`
	DataTime       string  `json:"dataTime"`
	HoursBack      float64 `json:"hoursBack"`
	ForecastOffset int     `json:"forecastOffset"`
	RunAge         int64   `json:"runAge"`
}

// IndexMeta describes the snapshot being indexed; the store copies it into
// the entry it creates or refreshes.
type IndexMeta struct {
	RunName        string
	DataTime       time.Time
	HoursBack      float64
	ForecastOffset int
	RunAge         int64
}

// Store layers three protocols over a TTL-bound key-value primitive:
// size-bounded chunking for oversized payloads, indexed versioning for
// historical snapshots, and bounded-depth eviction of old versions.
type Store struct {
	kv     KV
	clock  clockwork.Clock
	logger *slog.Logger

	// mu serializes the index read-modify-write so concurrent indexed
	// writes within this process cannot both claim the same index.
	mu sync.Mutex
}

// NewStore creates a Store over the given key-value backend. A nil clock
// selects the real clock.
func NewStore(kv KV, clock clockwork.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{kv: kv, clock: clock, logger: logger}
}

// SetValue writes a value under key, chunking it when the serialized form
// exceeds the payload ceiling. Chunked and unchunked keys are read back
// through the same GetValue call.
func (s *Store) SetValue(ctx context.Context, key string, v Value) error {
	payload, err := v.encode()
	if err != nil {
		return err
	}

	if len(payload) <= maxPayloadBytes {
		// Clear any chunk marker from a previous oversized write, or reads
		// would reassemble stale chunks instead of this value.
		if err := s.kv.Del(ctx, key+":chunks"); err != nil {
			return err
		}
		return s.kv.SetEx(ctx, key, string(payload), TTL)
	}

	switch v.kind {
	case listValue:
		// A previous document write may have left meta behind; a bare list
		// must not have it reinjected on read.
		if err := s.kv.Del(ctx, key+":meta"); err != nil {
			return err
		}
		return s.storeChunks(ctx, key, v.items, len(payload))
	case documentValue:
		if err := s.kv.SetEx(ctx, key+":meta", string(v.meta), TTL); err != nil {
			return err
		}
		return s.storeChunks(ctx, key, v.items, len(payload))
	default:
		return fmt.Errorf("%w: %d bytes at key %q", ErrNotChunkable, len(payload), key)
	}
}

func (s *Store) storeChunks(ctx context.Context, key string, items []json.RawMessage, totalSize int) error {
	numChunks := (totalSize + maxPayloadBytes - 1) / maxPayloadBytes
	chunkLen := (len(items) + numChunks - 1) / numChunks

	var chunks [][]json.RawMessage
	for start := 0; start < len(items); start += chunkLen {
		end := start + chunkLen
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}

	s.logger.Debug("chunking oversized payload",
		"key", key, "bytes", totalSize, "items", len(items), "chunks", len(chunks))

	if err := s.kv.SetEx(ctx, key+":chunks", strconv.Itoa(len(chunks)), TTL); err != nil {
		return err
	}

	for i, chunk := range chunks {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if err := s.kv.SetEx(ctx, fmt.Sprintf("%s:chunk:%d", key, i), string(raw), TTL); err != nil {
			return err
		}
	}

	return nil
}

// GetValue reads a value, transparently reassembling chunked payloads. The
// second return reports whether the key existed.
func (s *Store) GetValue(ctx context.Context, key string) (json.RawMessage, bool, error) {
	chunkCount, chunked, err := s.kv.Get(ctx, key+":chunks")
	if err != nil {
		return nil, false, err
	}

	if !chunked {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil || !ok {
			return nil, false, err
		}
		return json.RawMessage(raw), true, nil
	}

	numChunks, err := strconv.Atoi(chunkCount)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt chunk count at %s:chunks: %w", key, err)
	}

	var items []json.RawMessage
	for i := 0; i < numChunks; i++ {
		raw, ok, err := s.kv.Get(ctx, fmt.Sprintf("%s:chunk:%d", key, i))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		var chunk []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			return nil, false, fmt.Errorf("corrupt chunk %d at key %q: %w", i, key, err)
		}
		items = append(items, chunk...)
	}

	meta, hasMeta, err := s.kv.Get(ctx, key+":meta")
	if err != nil {
		return nil, false, err
	}

	if hasMeta {
		doc, err := injectPoints(json.RawMessage(meta), items)
		if err != nil {
			return nil, false, err
		}
		return doc, true, nil
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Delete removes a key and, when it was chunked, its chunk and meta keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	chunkCount, chunked, err := s.kv.Get(ctx, key+":chunks")
	if err != nil {
		return err
	}

	if !chunked {
		return s.kv.Del(ctx, key)
	}

	numChunks, err := strconv.Atoi(chunkCount)
	if err != nil {
		return fmt.Errorf("corrupt chunk count at %s:chunks: %w", key, err)
	}

	keys := make([]string, 0, numChunks+3)
	for i := 0; i < numChunks; i++ {
		keys = append(keys, fmt.Sprintf("%s:chunk:%d", key, i))
	}
	keys = append(keys, key+":chunks", key+":meta", key)

	return s.kv.Del(ctx, keys...)
}

// SetValueIndexed writes a new version of baseKey: the value lands at
// baseKey:{index} (and is mirrored at baseKey for latest-value reads), an
// index entry is appended, and history beyond maxHistory is evicted oldest
// first. A value whose DataTime falls within two hours of an existing
// entry updates that entry in place and reuses its index. Returns the
// index used.
func (s *Store) SetValueIndexed(ctx context.Context, baseKey string, v Value, meta IndexMeta, maxHistory int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentIndex, err := s.readCurrentIndex(ctx, baseKey)
	if err != nil {
		return 0, err
	}

	entries, err := s.readEntries(ctx, baseKey)
	if err != nil {
		return 0, err
	}

	entry := IndexEntry{
		Timestamp:      s.clock.Now().UTC().Format(time.RFC3339),
		DataPoints:     v.pointCount(),
		RunName:        meta.RunName,
		DataTime:       meta.DataTime.UTC().Format(time.RFC3339),
		HoursBack:      meta.HoursBack,
		ForecastOffset: meta.ForecastOffset,
		RunAge:         meta.RunAge,
	}

	pos := findWithinTolerance(entries, meta.DataTime)
	isUpdate := pos >= 0

	if isUpdate {
		entry.Index = entries[pos].Index
		entries[pos] = entry
		s.logger.Info("refreshing index entry", "key", baseKey, "index", entry.Index, "data_time", entry.DataTime)
	} else {
		entry.Index = currentIndex
		entries = append(entries, entry)
	}

	if err := s.SetValue(ctx, fmt.Sprintf("%s:%d", baseKey, entry.Index), v); err != nil {
		return 0, err
	}

	if len(entries) > maxHistory {
		evicted := entries[:len(entries)-maxHistory]
		entries = entries[len(entries)-maxHistory:]
		for _, old := range evicted {
			if err := s.Delete(ctx, fmt.Sprintf("%s:%d", baseKey, old.Index)); err != nil {
				return 0, err
			}
			s.logger.Info("evicted old snapshot", "key", baseKey, "index", old.Index)
		}
	}

	rawEntries, err := json.Marshal(entries)
	if err != nil {
		return 0, err
	}
	if err := s.kv.SetEx(ctx, baseKey+":indices", string(rawEntries), TTL); err != nil {
		return 0, err
	}

	if !isUpdate {
		next := strconv.FormatUint(uint64(entry.Index)+1, 10)
		if err := s.kv.SetEx(ctx, baseKey+":current_index", next, TTL); err != nil {
			return 0, err
		}
	}

	// Mirror at the plain key for latest-value reads.
	if err := s.SetValue(ctx, baseKey, v); err != nil {
		return 0, err
	}

	return entry.Index, nil
}

// SetBinary stores binary data base64-encoded under key.
func (s *Store) SetBinary(ctx context.Context, key string, buf []byte) error {
	return s.kv.SetEx(ctx, key, base64.StdEncoding.EncodeToString(buf), TTL)
}

// GetBinary reads and decodes binary data stored with SetBinary.
func (s *Store) GetBinary(ctx context.Context, key string) ([]byte, bool, error) {
	encoded, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt binary payload at key %q: %w", key, err)
	}
	return buf, true, nil
}

// SetBinaryIndexed stores binary data at baseKey:{index} and mirrors it at
// baseKey. Binary payloads are assumed to fit under the ceiling unchunked.
func (s *Store) SetBinaryIndexed(ctx context.Context, baseKey string, buf []byte, index uint32) error {
	if err := s.SetBinary(ctx, fmt.Sprintf("%s:%d", baseKey, index), buf); err != nil {
		return err
	}
	return s.SetBinary(ctx, baseKey, buf)
}

// Indices returns the history list for baseKey sorted most recent first.
// Entries without a parseable data time sort as if at time zero.
func (s *Store) Indices(ctx context.Context, baseKey string) ([]IndexEntry, error) {
	entries, err := s.readEntries(ctx, baseKey)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return parseEntryTime(entries[i]).After(parseEntryTime(entries[j]))
	})

	return entries, nil
}

func (s *Store) readCurrentIndex(ctx context.Context, baseKey string) (uint32, error) {
	raw, ok, err := s.kv.Get(ctx, baseKey+":current_index")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, nil
	}
	return uint32(n), nil
}

func (s *Store) readEntries(ctx context.Context, baseKey string) ([]IndexEntry, error) {
	raw, ok, err := s.kv.Get(ctx, baseKey+":indices")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var entries []IndexEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// An unreadable history list is treated as absent rather than
		// wedging every future write.
		s.logger.Warn("discarding corrupt index list", "key", baseKey, "error", err)
		return nil, nil
	}
	return entries, nil
}

// findWithinTolerance returns the position of the entry whose data time is
// within the dedup window of t, or -1.
func findWithinTolerance(entries []IndexEntry, t time.Time) int {
	for i, e := range entries {
		existing, err := time.Parse(time.RFC3339, e.DataTime)
		if err != nil {
			continue
		}
		diff := t.Sub(existing)
		if diff < 0 {
			diff = -diff
		}
		if diff < dedupTolerance {
			return i
		}
	}
	return -1
}

func parseEntryTime(e IndexEntry) time.Time {
	t, err := time.Parse(time.RFC3339, e.DataTime)
	if err != nil {
		return time.Time{}
	}
	return t
}
