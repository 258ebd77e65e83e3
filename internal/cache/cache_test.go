package cache

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/testutil"
)

var (
	_ engine.Cache = (*Memory)(nil)
	_ engine.Cache = (*Badger)(nil)
)

func sampleRows() []ir.Datum {
	ts := time.Date(2015, 3, 12, 10, 0, 0, 0, time.UTC)
	return []ir.Datum{
		{
			"Cut":    ir.String("Ideal"),
			"Count":  ir.Number(3),
			"Time":   ir.NewTime(ts),
			"Hour":   ir.NewTimeRange(ts, ts.Add(time.Hour)),
			"Price":  ir.NewNumberRange(100, 200),
			"Colors": ir.NewSet(ir.TypeString, ir.String("D"), ir.String("E")),
			"Big":    ir.Bool(false),
			"Note":   ir.Null{},
		},
		{"Cut": ir.String("Good"), "Count": ir.Number(1)},
	}
}

func newMemory(opts Options) (*Memory, *testutil.Clock) {
	clock := testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(opts)
	m.now = clock.Now
	return m, clock
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Options{})

	_, ok, err := m.Get(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "q1", sampleRows()))
	rows, ok, err := m.Get(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Equal(sampleRows()[0]))

	// Stored rows are isolated from the caller's copy.
	rows[0]["Cut"] = ir.String("changed")
	again, _, _ := m.Get(ctx, "q1")
	assert.Equal(t, ir.String("Ideal"), again[0].Get("Cut"))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		opts   Options
		age    time.Duration
		wantOK bool
	}{
		{"fresh", Options{TTL: time.Minute}, 30 * time.Second, true},
		{"expired", Options{TTL: time.Minute}, 2 * time.Minute, false},
		{"floor outlives ttl", Options{TTL: time.Minute, MinRetention: 5 * time.Minute}, 2 * time.Minute, true},
		{"no ttl", Options{}, 24 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newMemory(tt.opts)
			require.NoError(t, m.Put(ctx, "q", sampleRows()))
			clock.Advance(tt.age)

			_, ok, err := m.Get(ctx, "q")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestMemory_EvictsOldestPastFloor(t *testing.T) {
	ctx := context.Background()
	m, clock := newMemory(Options{MaxEntries: 2, MinRetention: time.Minute})

	require.NoError(t, m.Put(ctx, "a", nil))
	clock.Advance(2 * time.Minute)
	require.NoError(t, m.Put(ctx, "b", nil))
	clock.Advance(2 * time.Minute)
	require.NoError(t, m.Put(ctx, "c", nil))

	assert.Equal(t, 2, m.Len())
	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok, "oldest entry is evicted first")
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemory_FloorBlocksEviction(t *testing.T) {
	ctx := context.Background()
	m, clock := newMemory(Options{MaxEntries: 1, MinRetention: time.Hour})

	require.NoError(t, m.Put(ctx, "a", nil))
	clock.Advance(time.Minute)
	require.NoError(t, m.Put(ctx, "b", nil))

	assert.Equal(t, 2, m.Len(), "entries younger than the floor are kept over capacity")
}

func TestBadger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBadger("", Options{TTL: time.Hour})
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, "q1", sampleRows()))
	rows, ok, err := b.Get(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rows, 2)

	want := sampleRows()
	for i := range want {
		assert.True(t, want[i].Equal(rows[i]), "row %d: want %v, got %v", i, want[i], rows[i])
	}
}

func TestBadger_LogsThroughOptionsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b, err := OpenBadger("", Options{Logger: logger})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(context.Background(), "q1", sampleRows()))
	assert.Contains(t, buf.String(), "cached rows")
	assert.Contains(t, buf.String(), "fingerprint=q1")
}

func TestBadger_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBadger(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "q1", sampleRows()[1:]))
	require.NoError(t, b.Close())

	reopened, err := OpenBadger(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	rows, ok, err := reopened.Get(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.String("Good"), rows[0].Get("Cut"))
}

func TestCodec_Compresses(t *testing.T) {
	rows := make([]ir.Datum, 200)
	for i := range rows {
		rows[i] = ir.Datum{"Cut": ir.String("Ideal"), "Count": ir.Number(float64(i % 3))}
	}
	data, err := encodeRows(rows)
	require.NoError(t, err)
	assert.Less(t, len(data), 200*30)

	back, err := decodeRows(data)
	require.NoError(t, err)
	assert.Len(t, back, 200)
	assert.Equal(t, ir.Number(2), back[2].Get("Count"))
}
