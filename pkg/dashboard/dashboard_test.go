package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/aegis/pkg/store"
)

func result(i int, country string, label int) store.Result {
	return store.Result{
		TxnID:     fmt.Sprintf("tx%08d", i),
		Timestamp: "2024-01-01T00:00:00",
		Amount:    float64(i),
		Country:   country,
		Merchant:  "amazon",
		IFScore:   0.2,
		AEMSE:     0.01,
		Label:     label,
	}
}

func TestBuild(t *testing.T) {
	var results []store.Result
	countries := []string{"US", "GB", "US", "IN", "US", "GB"}
	for i, c := range countries {
		results = append(results, result(i, c, 1))
	}
	results = append(results, result(99, "JP", 0))

	s := Build(results)
	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 6, s.Flagged)
	assert.Equal(t, []CountryCount{{"US", 3}, {"GB", 2}, {"IN", 1}}, s.Countries)
	require.Len(t, s.Latest, 6)
	assert.Equal(t, "tx00000000", s.Latest[0].TxnID, "input order kept")
	assert.Len(t, s.Recent, 7)
}

func TestBuildCaps(t *testing.T) {
	var results []store.Result
	for i := 0; i < 300; i++ {
		results = append(results, result(i, fmt.Sprintf("C%02d", i%15), 1))
	}

	s := Build(results)
	assert.Equal(t, 300, s.Total)
	assert.Len(t, s.Latest, latestFlagged)
	assert.Len(t, s.Recent, recentRows)
	require.Len(t, s.Countries, topCountries)
	assert.Equal(t, "C00", s.Countries[0].Country, "ties break by name")
	assert.Equal(t, 20, s.Countries[0].Count)
}

func TestBuildEmpty(t *testing.T) {
	s := Build(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.Flagged)
	assert.Empty(t, s.Countries)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build([]store.Result{result(1, "US", 1), result(2, "IN", 0)})))

	out := buf.String()
	assert.Contains(t, out, "Total transactions")
	assert.Contains(t, out, "== Latest flagged ==")
	assert.Contains(t, out, "tx00000001")
	assert.Contains(t, out, "US  1  "+strings.Repeat("#", barWidth))
	assert.Contains(t, out, "== Recent txns ==")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(nil)))
	assert.Contains(t, buf.String(), "No transactions yet")

	buf.Reset()
	require.NoError(t, Render(&buf, Build([]store.Result{result(1, "US", 0)})))
	assert.Contains(t, buf.String(), "No fraudulent transactions detected yet.")
	assert.Contains(t, buf.String(), "No flagged data available.")
}

// growingSource adds rows on every load.
type growingSource struct {
	mu    sync.Mutex
	step  int
	rows  []store.Result
	loads int
	err   error
}

func (g *growingSource) Recent(_ context.Context, limit int) ([]store.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loads++
	if g.err != nil {
		return nil, g.err
	}
	for i := 0; i < g.step; i++ {
		g.rows = append([]store.Result{result(len(g.rows), "US", 0)}, g.rows...)
	}
	if len(g.rows) > limit {
		return g.rows[:limit], nil
	}
	return g.rows, nil
}

func TestWatchGoesStatic(t *testing.T) {
	src := &growingSource{step: 80}
	var buf bytes.Buffer

	snap, err := Watch(context.Background(), src, WatchConfig{Interval: time.Millisecond, Limit: 1000, StaticAfter: 200}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 240, snap.Total)
	assert.Equal(t, 3, src.loads)
	assert.Contains(t, buf.String(), "Dashboard is now static")
}

func TestWatchStopsOnCancel(t *testing.T) {
	src := &growingSource{err: errors.New("database is locked")}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	_, err := Watch(ctx, src, WatchConfig{Interval: 5 * time.Millisecond, Limit: 10, StaticAfter: 200}, &buf)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), "No transactions yet")
}

func TestWatchOverStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Upsert(ctx, result(i, "GB", i%2)))
	}

	var buf bytes.Buffer
	snap, err := Watch(ctx, st, WatchConfig{Interval: time.Millisecond, Limit: 1000, StaticAfter: 5}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 2, snap.Flagged)
	assert.Equal(t, "tx00000004", snap.Recent[0].TxnID)
}
