package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/windcache/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	ann := domain.Announcement{
		Kind:       "wind",
		RunName:    "20260829_12Z",
		DataTime:   time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Index:      3,
		DataPoints: 259920,
		StoredAt:   time.Date(2026, 8, 29, 13, 5, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(ann)
	require.NoError(t, err)

	assert.Equal(t, []byte("wind"), msg.Key)

	var back domain.Announcement
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	assert.Equal(t, ann, back)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_name", msg.Headers[0].Key)
	assert.Equal(t, []byte("20260829_12Z"), msg.Headers[0].Value)
	assert.Equal(t, "stored_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-08-29T13:05:00Z"), msg.Headers[1].Value)
}

func TestNewAnnouncerConfig(t *testing.T) {
	a := NewAnnouncer([]string{"localhost:9092"}, "forecast-snapshots", nil)

	assert.Equal(t, "forecast-snapshots", a.writer.Topic)
	assert.Equal(t, "localhost:9092", a.writer.Addr.String())
}
