package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/aegis/pkg/config"
	"github.com/hed1ad/aegis/pkg/model"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd(&app{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()), "aegis %v", args)
	return out.String()
}

func TestGenerateTrainEvaluate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")
	yaml := fmt.Sprintf(`
log:
  level: warn
artifacts: %s
store:
  path: %s
train:
  data: %s
  rows: 400
  trees: 10
  sample_size: 64
  hidden: [8]
  epochs: 2
`, filepath.Join(dir, "artifacts"), filepath.Join(dir, "results.db"), filepath.Join(dir, "tx.csv"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	run(t, "--config", cfgPath, "generate")
	assert.FileExists(t, filepath.Join(dir, "tx.csv"))

	run(t, "--config", cfgPath, "train")
	for _, f := range []string{model.FeaturesFile, model.ForestFile, model.AutoencoderFile} {
		assert.FileExists(t, filepath.Join(dir, "artifacts", f))
	}

	run(t, "--config", cfgPath, "evaluate")
	run(t, "--config", cfgPath, "dashboard", "--once")

	out := run(t, "--config", cfgPath, "config")
	assert.Contains(t, out, "rows: 400")
}

func TestServeFailsWithoutArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "aegis.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("artifacts: "+filepath.Join(dir, "none")+"\n"), 0o644))

	cmd := newRootCmd(&app{})
	cmd.SetArgs([]string{"--config", cfgPath, "serve", "--addr", "127.0.0.1:0"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, model.ErrArtifact)
}

func TestTrainConfigMapping(t *testing.T) {
	cfg := config.Default()
	got := trainConfig(cfg)

	want := model.DefaultTrainConfig()
	assert.Equal(t, want, got)
}
