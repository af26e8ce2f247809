package main

import (
	"bytes"
	"context"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionwatch/internal/config"
	"github.com/bdougie/motionwatch/internal/models"
	"github.com/bdougie/motionwatch/internal/monitor"
	"github.com/bdougie/motionwatch/internal/player"
	"github.com/bdougie/motionwatch/internal/schedule"
	"github.com/bdougie/motionwatch/internal/storage"
)

func TestParseFlags(t *testing.T) {
	opts, fs, err := parseFlags([]string{"--video", "ward.mp4", "--backend", "ollama", "--interactive"})
	require.NoError(t, err)
	assert.Equal(t, "ward.mp4", opts.videoPath)
	assert.True(t, opts.interactive)

	cfg := config.Default()
	require.NoError(t, applyFlags(cfg, opts, fs))
	assert.Equal(t, config.BackendOllama, cfg.Backend)
	assert.Equal(t, "output", cfg.OutputDir, "unset flags keep config values")
}

func TestParseFlags_RequiresOneSource(t *testing.T) {
	_, _, err := parseFlags(nil)
	assert.Error(t, err)

	_, _, err = parseFlags([]string{"--video", "a.mp4", "--frames", "dir"})
	assert.Error(t, err)
}

func TestApplyFlags_RejectsUnknownArchive(t *testing.T) {
	opts, fs, err := parseFlags([]string{"--frames", "dir", "--archive", "redis"})
	require.NoError(t, err)
	assert.Error(t, applyFlags(config.Default(), opts, fs))
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.True(t, newLogger(io.Discard, "bogus", true).Enabled(context.Background(), slog.LevelInfo))
}

func TestPrintAlert(t *testing.T) {
	var buf bytes.Buffer
	printAlert(&buf, models.Finding{Timestamp: "1:30", Analysis: "Overcrowding"})
	assert.Equal(t, "ALERT [1:30] - Overcrowding\n", buf.String())
}

type blankDecoder struct{}

func (blankDecoder) FrameAt(ctx context.Context, at time.Duration) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

type verdictAnalyzer string

func (v verdictAnalyzer) Invoke(ctx context.Context, snap models.Snapshot, prompt string) (string, error) {
	return string(v), nil
}

func newTestConsole(t *testing.T, verdict string) (*console, *schedule.Manual, *bytes.Buffer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manual := schedule.NewManual()
	p := player.New()
	session := monitor.NewSession(p, verdictAnalyzer(verdict), storage.NewFindingLog(), monitor.Options{
		Threshold: 15,
		Scheduler: manual,
		Logger:    logger,
	})
	t.Cleanup(session.Close)
	p.Subscribe(session.OnPlayback)
	p.Load(player.Media{Name: "ward", Duration: time.Hour, Decoder: blankDecoder{}})

	var out bytes.Buffer
	return &console{player: p, session: session, outputDir: t.TempDir(), out: &out, logger: logger}, manual, &out
}

func TestConsole_Commands(t *testing.T) {
	c, manual, out := newTestConsole(t, "Aggressive behavior")

	assert.True(t, c.handle("play"))
	assert.True(t, c.player.Playing())
	manual.Fire()
	c.session.Wait()

	assert.True(t, c.handle(" PAUSE "))
	assert.False(t, c.session.Running())

	c.handle("status")
	assert.Contains(t, out.String(), "ward paused")
	assert.Contains(t, out.String(), "0:00 - Aggressive behavior")

	c.handle("export")
	data, err := os.ReadFile(filepath.Join(c.outputDir, storage.ExportFileName))
	require.NoError(t, err)
	assert.Equal(t, "0:00 - Aggressive behavior", string(data))

	c.handle("clear")
	assert.Equal(t, 0, c.session.Log().Len())

	c.handle("rewind")
	assert.Contains(t, out.String(), "commands:")

	assert.False(t, c.handle("quit"))
}

func TestConsole_ExportEmptyWritesNothing(t *testing.T) {
	c, _, _ := newTestConsole(t, "NORMAL")
	require.NoError(t, c.export())
	_, err := os.Stat(filepath.Join(c.outputDir, storage.ExportFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestConsole_RunStopsOnQuit(t *testing.T) {
	c, _, _ := newTestConsole(t, "NORMAL")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.run(ctx, strings.NewReader("play\nquit\nplay\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("console did not stop on quit")
	}
	assert.True(t, c.player.Playing())
	c.player.Pause()
}
