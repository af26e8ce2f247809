package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motionwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second, cfg.Interval())
	assert.Equal(t, 15.0, cfg.MotionThreshold)
	assert.Equal(t, 10, cfg.SamplingStride)
	assert.Equal(t, 80, cfg.JPEGQualityPercent())
	assert.Equal(t, 1, cfg.MaxInFlight)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
frame_check_interval: 500
motion_threshold: 22.5
analysis_timeout: 5s
backend: ollama
`)
	t.Setenv("MOTION_THRESHOLD", "30")
	t.Setenv("MAX_IN_FLIGHT", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval())
	assert.Equal(t, 30.0, cfg.MotionThreshold)
	assert.Equal(t, 5*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, 0, cfg.MaxInFlight)
	assert.Equal(t, 10, cfg.SamplingStride)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "motion_threshold: [oops"))
	assert.Error(t, err)
}

func TestValidate_Clamps(t *testing.T) {
	cfg := &Config{
		FrameCheckInterval: -1,
		MotionThreshold:    -4,
		SamplingStride:     0,
		FrameWidth:         10,
		FrameHeight:        0,
		JPEGQuality:        1.5,
		MaxInFlight:        -2,
	}
	require.NoError(t, cfg.Validate())
	d := Default()
	assert.Equal(t, d.FrameCheckInterval, cfg.FrameCheckInterval)
	assert.Equal(t, d.MotionThreshold, cfg.MotionThreshold)
	assert.Equal(t, d.SamplingStride, cfg.SamplingStride)
	assert.Equal(t, 640, cfg.FrameWidth)
	assert.Equal(t, 360, cfg.FrameHeight)
	assert.Equal(t, 0.8, cfg.JPEGQuality)
	assert.Equal(t, 1, cfg.MaxInFlight)
	assert.Equal(t, BackendGemini, cfg.Backend)
	assert.Equal(t, DefaultGeminiURL, cfg.GeminiURL)
	assert.Equal(t, DefaultPrompt, cfg.Prompt)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := Default()
	cfg.Backend = "openai"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Archive = "redis"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Archive = ArchivePostgres
	assert.Error(t, cfg.Validate())
	cfg.DatabaseURL = "postgres://u:p@localhost:5432/db"
	assert.NoError(t, cfg.Validate())
}
