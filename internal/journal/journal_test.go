package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playround/internal/geom"
	"playround/internal/scene"
)

func readLines(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, sc.Err())
	return out
}

// TestJournalWritesJSONLines verifies domain events land on disk in order
func TestJournalWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := New(DefaultConfig())
	require.NoError(t, j.Start(path))

	pad := scene.Record{Kind: scene.KindPad, ID: "pad", Center: geom.Pt(1, 1), Radius: 10}
	assert.True(t, j.PeerUp("10.0.0.1:10101"))
	assert.True(t, j.Created(pad, SourceLocal))
	assert.True(t, j.Plucked(scene.PluckEvent{String: "str", Frequency: 440, Tick: 9}))
	assert.True(t, j.Deleted([]string{"pad", "str"}, "10.0.0.1:10101"))
	j.Stop()

	events := readLines(t, path)
	require.Len(t, events, 4)

	wantTypes := []EventType{EventTypePeerUp, EventTypeCreate, EventTypePluck, EventTypeDelete}
	for i, ev := range events {
		assert.Equal(t, wantTypes[i], ev.Type)
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.Equal(t, EventVersion, ev.Version)
	}

	var obj ObjectPayload
	require.NoError(t, json.Unmarshal(events[1].Payload, &obj))
	assert.Equal(t, ObjectPayload{Kind: "pad", ID: "pad"}, obj)

	var del DeletePayload
	require.NoError(t, json.Unmarshal(events[3].Payload, &del))
	assert.Equal(t, []string{"pad", "str"}, del.Removed)

	assert.Equal(t, uint64(4), j.GetStats()["written"])
}

// TestJournalTypesAreReadable verifies event types serialize by name
func TestJournalTypesAreReadable(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventTypeOrphanParked, "", nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"orphan_parked"`)
	assert.NotContains(t, string(data), "payload")
}

// TestJournalRejectsWhenStopped verifies a stopped journal drops silently
func TestJournalRejectsWhenStopped(t *testing.T) {
	j := New(DefaultConfig())
	assert.False(t, j.PeerDown("10.0.0.1:10101"))

	require.NoError(t, j.Start(""))
	assert.True(t, j.PeerDown("10.0.0.1:10101"))
	j.Stop()
	j.Stop()
	assert.False(t, j.PeerDown("10.0.0.1:10101"))
}

// TestJournalRateLimitsPerSource verifies one noisy source cannot flood the log
func TestJournalRateLimitsPerSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEventsPerSource = 50 // burst of 5
	j := New(cfg)
	require.NoError(t, j.Start(""))
	defer j.Stop()

	accepted := 0
	for i := 0; i < 20; i++ {
		if j.Emit(NewEvent(EventTypeCreate, "10.0.0.9:10101", nil)) {
			accepted++
		}
	}
	assert.Equal(t, 5, accepted)
	assert.True(t, j.Emit(NewEvent(EventTypeCreate, "10.0.0.8:10101", nil)), "other sources are unaffected")
	assert.Equal(t, uint64(15), j.GetStats()["dropped"])
}

// TestJournalRingKeepsNewest verifies the ring drops the oldest entries
func TestJournalRingKeepsNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 4
	j := New(cfg)
	require.NoError(t, j.Start(""))
	defer j.Stop()

	for i := 0; i < 6; i++ {
		require.True(t, j.Emit(NewEvent(EventTypePluck, "", nil)))
	}

	recent := j.Recent(0)
	require.Len(t, recent, 4)
	assert.Equal(t, uint64(3), recent[0].Sequence)
	assert.Equal(t, uint64(6), recent[3].Sequence)

	last := j.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, uint64(5), last[0].Sequence)
}

// TestCleanupLimiters verifies idle source limiters are released
func TestCleanupLimiters(t *testing.T) {
	j := New(DefaultConfig())
	j.sourceLimiter("a")
	j.sourceLimiter("b")

	j.cleanupLimiters(time.Now().Add(time.Hour))
	count := 0
	j.sourceLimiters.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	assert.Equal(t, 0, count)
}
