package output

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFileName(t *testing.T) {
	assert.Equal(t, "valkey_mixed_50c_30s.json", DefaultFileName("valkey", "mixed", 50, 30*time.Second))
	assert.Equal(t, "run_light_1c_2s.json", DefaultFileName("run", "light", 1, 1500*time.Millisecond))
}

func TestResolvePath(t *testing.T) {
	cfg := testConfig()

	cfg.Output = ""
	assert.Empty(t, ResolvePath(cfg))

	dir := t.TempDir()
	cfg.Output = dir
	assert.Equal(t, filepath.Join(dir, "valkey_mixed_50c_30s.json"), ResolvePath(cfg))

	cfg.Output = "results/"
	assert.Equal(t, filepath.Join("results", "valkey_mixed_50c_30s.json"), ResolvePath(cfg))

	cfg.Output = filepath.Join(dir, "custom.yaml")
	assert.Equal(t, cfg.Output, ResolvePath(cfg))

	cfg.HeavyURL = ""
	cfg.Output = dir
	assert.Equal(t, filepath.Join(dir, "valkey_light_50c_30s.json"), ResolvePath(cfg))
}
