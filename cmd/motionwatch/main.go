package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdougie/motionwatch/internal/analyzer"
	"github.com/bdougie/motionwatch/internal/config"
	"github.com/bdougie/motionwatch/internal/extractor"
	"github.com/bdougie/motionwatch/internal/metrics"
	"github.com/bdougie/motionwatch/internal/models"
	"github.com/bdougie/motionwatch/internal/monitor"
	"github.com/bdougie/motionwatch/internal/player"
	"github.com/bdougie/motionwatch/internal/storage"
)

type options struct {
	videoPath     string
	framesDir     string
	frameInterval time.Duration
	configPath    string
	outputDir     string
	backend       string
	archive       string
	metricsAddr   string
	interactive   bool
	noColor       bool
}

func parseFlags(args []string) (options, *flag.FlagSet, error) {
	var opts options
	fs := flag.NewFlagSet("motionwatch", flag.ContinueOnError)
	fs.StringVar(&opts.videoPath, "video", "", "path to the video file to monitor")
	fs.StringVar(&opts.framesDir, "frames", "", "directory of extracted JPEG frames to monitor instead of a video")
	fs.DurationVar(&opts.frameInterval, "frame-interval", time.Second, "playback time between frames in --frames mode")
	fs.StringVar(&opts.configPath, "config", "motionwatch.yaml", "path to the YAML config file")
	fs.StringVar(&opts.outputDir, "output", "", "directory for abnormal-events.txt")
	fs.StringVar(&opts.backend, "backend", "", "analyzer backend: gemini or ollama")
	fs.StringVar(&opts.archive, "archive", "", "finding archive: none, postgres or sqlite")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "address for the /metrics endpoint, e.g. :9090")
	fs.BoolVar(&opts.interactive, "interactive", false, "read play/pause/clear/export/status/quit from stdin")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored log output")
	if err := fs.Parse(args); err != nil {
		return opts, fs, err
	}
	if (opts.videoPath == "") == (opts.framesDir == "") {
		return opts, fs, errors.New("exactly one of --video or --frames is required")
	}
	return opts, fs, nil
}

// applyFlags overrides cfg with flags given on the command line.
func applyFlags(cfg *config.Config, opts options, fs *flag.FlagSet) error {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.OutputDir = opts.outputDir
		case "backend":
			cfg.Backend = opts.backend
		case "archive":
			cfg.Archive = opts.archive
		case "metrics-addr":
			cfg.MetricsAddr = opts.metricsAddr
		}
	})
	return cfg.Validate()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "motionwatch: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: motionwatch --video path/to/video.mp4 [--config motionwatch.yaml] [--output dir] [--interactive]")
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, opts, fs); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel, opts.noColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s analyzer: %w", cfg.Backend, err)
	}
	invoker := analyzer.NewInvoker(backend, cfg.JPEGQualityPercent(), logger)

	var sink monitor.FindingSink
	archiver, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	var queue *storage.Queue
	if archiver != nil {
		defer archiver.Close()
		queue = storage.NewQueue(archiver, 2, 100, logger)
		sink = queue
		logger.Info("archiving findings", "archive", cfg.Archive)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.StartServer(cfg.MetricsAddr, logger)
	}

	p := player.New()
	session := monitor.NewSession(p, invoker, storage.NewFindingLog(), monitor.Options{
		Interval:        cfg.Interval(),
		Threshold:       cfg.MotionThreshold,
		Stride:          cfg.SamplingStride,
		Prompt:          cfg.Prompt,
		AnalysisTimeout: cfg.AnalysisTimeout,
		MaxInFlight:     cfg.MaxInFlight,
		MaxPerMinute:    cfg.MaxAnalysesPerMinute,
		Sink:            sink,
		OnFinding:       func(f models.Finding) { printAlert(os.Stdout, f) },
		Logger:          logger,
	})
	p.Subscribe(session.OnPlayback)

	ended := make(chan struct{}, 1)
	p.Subscribe(func(e player.Event) {
		logger.Debug("playback", "event", e.Type, "media", e.Media, "position", models.FormatTimestamp(e.Position))
		if e.Type == player.EventEnded {
			select {
			case ended <- struct{}{}:
			default:
			}
		}
	})

	media, err := openMedia(ctx, opts, cfg)
	if err != nil {
		return err
	}
	logger.Info("monitoring", "media", media.Name, "duration", media.Duration, "backend", cfg.Backend)

	p.Load(media)
	p.Play()

	con := &console{player: p, session: session, outputDir: cfg.OutputDir, out: os.Stdout, logger: logger}
	if opts.interactive {
		quit := make(chan struct{})
		go func() {
			con.run(ctx, os.Stdin)
			close(quit)
		}()
		select {
		case <-ctx.Done():
		case <-quit:
		}
	} else {
		select {
		case <-ctx.Done():
		case <-ended:
		}
	}

	p.Pause()
	if n := session.Pending(); n > 0 {
		logger.Info("waiting for pending analyses", "pending", n)
	}
	session.Close()

	exportErr := con.export()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if queue != nil {
		if err := queue.Close(shutdownCtx); err != nil {
			logger.Warn("failed to flush archive", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return exportErr
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analyzer.Backend, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		return analyzer.NewOllama(ctx, analyzer.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Port:    cfg.OllamaPort,
			Model:   cfg.OllamaModel,
		}, logger)
	default:
		return analyzer.NewGemini(analyzer.GeminiConfig{
			URL:     cfg.GeminiURL,
			APIKey:  cfg.GeminiAPIKey,
			Timeout: cfg.AnalysisTimeout,
		}), nil
	}
}

// openArchive returns nil when archiving is disabled.
func openArchive(ctx context.Context, cfg *config.Config) (storage.Archiver, error) {
	switch cfg.Archive {
	case config.ArchivePostgres:
		if err := storage.InitSchema(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
		}
		return storage.NewPostgresArchive(ctx, cfg.DatabaseURL)
	case config.ArchiveSQLite:
		return storage.NewSQLiteArchive(cfg.SQLitePath)
	default:
		return nil, nil
	}
}

func openMedia(ctx context.Context, opts options, cfg *config.Config) (player.Media, error) {
	if opts.framesDir != "" {
		return player.OpenStills(opts.framesDir, opts.frameInterval, cfg.FrameWidth, cfg.FrameHeight)
	}
	return player.OpenVideo(ctx, opts.videoPath, extractor.NewGrabber(cfg.FrameWidth, cfg.FrameHeight))
}
