package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))

	assert.Equal(t, 0.1, cfg.Thresholds.IsolationForest)
	assert.Equal(t, 0.05, cfg.Thresholds.Autoencoder)
	assert.Equal(t, 200*time.Millisecond, cfg.Ingest.Delay)
	assert.Equal(t, 5*time.Second, cfg.Ingest.Timeout)
	assert.Equal(t, 1000, cfg.Ingest.Count)
	assert.Equal(t, 200, cfg.Dashboard.StaticAfter)
	assert.Equal(t, 3*time.Second, cfg.Dashboard.Refresh)
}

func TestLoaderWithoutPathServesDefaults(t *testing.T) {
	l, err := NewLoader("", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Default(), *l.Config())

	stop, err := l.Watch()
	require.NoError(t, err)
	stop()
}

func TestLoaderAppliesDefaultsToMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	writeFile(t, path, `
thresholds:
  isolation_forest: 0
server:
  addr: ":9100"
  read_timeout: 2s
train:
  hidden: [16]
`)

	l, err := NewLoader(path, zerolog.Nop())
	require.NoError(t, err)
	cfg := l.Config()

	assert.Equal(t, 0.0, cfg.Thresholds.IsolationForest, "explicit zero kept")
	assert.Equal(t, 0.05, cfg.Thresholds.Autoencoder)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []int{16}, cfg.Train.Hidden)
	assert.Equal(t, 200, cfg.Train.Trees)
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader(filepath.Join(dir, "missing.yaml"), zerolog.Nop())
	assert.ErrorContains(t, err, "read config")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "server: [not, a, map]\n")
	_, err = NewLoader(bad, zerolog.Nop())
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	writeFile(t, invalid, "thresholds:\n  autoencoder: -1\nlog:\n  format: xml\n")
	_, err = NewLoader(invalid, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds.autoencoder")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Ingest.Count = 0
	cfg.Ingest.Source = "csv"
	cfg.Train.Contamination = 0.7
	cfg.Train.ValidationSplit = 1
	cfg.Dashboard.Refresh = 0

	err := Validate(&cfg)
	require.Error(t, err)
	for _, want := range []string{
		"server.addr",
		"ingest.count",
		"ingest.csv",
		"train.contamination",
		"train.validation_split",
		"dashboard.refresh",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestReloadNotifiesCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	writeFile(t, path, "thresholds:\n  isolation_forest: 0.1\n")

	l, err := NewLoader(path, zerolog.Nop())
	require.NoError(t, err)

	var got []float64
	l.OnChange(func(c *Config) { got = append(got, c.Thresholds.IsolationForest) })

	writeFile(t, path, "thresholds:\n  isolation_forest: -0.2\n")
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, -0.2, cfg.Thresholds.IsolationForest)
	assert.Equal(t, []float64{-0.2}, got)

	writeFile(t, path, "thresholds:\n  autoencoder: .nan\n")
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, -0.2, l.Config().Thresholds.IsolationForest, "previous config kept")
	assert.Len(t, got, 1)
}

func TestWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	writeFile(t, path, "thresholds:\n  autoencoder: 0.05\n")

	l, err := NewLoader(path, zerolog.Nop())
	require.NoError(t, err)

	changed := make(chan float64, 8)
	l.OnChange(func(c *Config) { changed <- c.Thresholds.Autoencoder })

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	writeFile(t, path, "thresholds:\n  autoencoder: 0.5\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-changed:
			if v == 0.5 {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "aegis.yaml")
	require.NoError(t, WriteDefault(path))

	l, err := NewLoader(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Default(), *l.Config())
}
