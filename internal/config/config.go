// Package config loads motionwatch settings.
//
// Precedence: defaults, then the YAML file, then environment variables.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendGemini = "gemini"
	BackendOllama = "ollama"

	ArchiveNone     = "none"
	ArchivePostgres = "postgres"
	ArchiveSQLite   = "sqlite"
)

// DefaultGeminiURL is the public generateContent endpoint for the default model.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

// DefaultPrompt asks the model to report hospital surveillance anomalies.
const DefaultPrompt = `Analyze this hospital surveillance frame and ONLY report if you detect any of these abnormal conditions:
1. Overcrowding: Too many people in one area or long queues
2. Cleanliness issues: Visible garbage, spills, or unclean areas
3. Staff inactivity: Medical staff idle when patients need attention
4. Unattended patients: Patients visibly in distress or waiting too long
5. Aggressive behavior: Arguments, physical altercations or threatening postures
6. PPE/mask violations: Staff or patients without required protective equipment
7. For every frame, detect the number of people in the frame and report the count.

If NONE of these issues are detected, respond with "NORMAL".
If any issues ARE detected, briefly describe ONLY the specific issue(s).`

// Config holds runtime configuration for sampling, analysis and output.
type Config struct {
	// Sampling
	FrameCheckInterval int     `yaml:"frame_check_interval" env:"FRAME_CHECK_INTERVAL"` // milliseconds
	MotionThreshold    float64 `yaml:"motion_threshold" env:"MOTION_THRESHOLD"`
	SamplingStride     int     `yaml:"sampling_stride" env:"SAMPLING_STRIDE"`
	FrameWidth         int     `yaml:"frame_width" env:"FRAME_WIDTH"`
	FrameHeight        int     `yaml:"frame_height" env:"FRAME_HEIGHT"`

	// Analysis
	JPEGQuality          float64       `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
	MaxInFlight          int           `yaml:"max_in_flight" env:"MAX_IN_FLIGHT"`
	MaxAnalysesPerMinute int           `yaml:"max_analyses_per_minute" env:"MAX_ANALYSES_PER_MINUTE"`
	AnalysisTimeout      time.Duration `yaml:"analysis_timeout" env:"ANALYSIS_TIMEOUT"`
	Prompt               string        `yaml:"prompt" env:"ANALYSIS_PROMPT"`
	Backend              string        `yaml:"backend" env:"ANALYZER_BACKEND"`
	GeminiURL            string        `yaml:"gemini_url" env:"GEMINI_API_URL"`
	GeminiAPIKey         string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	OllamaURL            string        `yaml:"ollama_url" env:"OLLAMA_URL"`
	OllamaPort           int           `yaml:"ollama_port" env:"OLLAMA_PORT"`
	OllamaModel          string        `yaml:"ollama_model" env:"OLLAMA_MODEL"`

	// Output
	OutputDir   string `yaml:"output_dir" env:"OUTPUT_DIR"`
	Archive     string `yaml:"archive" env:"ARCHIVE"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		FrameCheckInterval:   1000,
		MotionThreshold:      15,
		SamplingStride:       10,
		FrameWidth:           640,
		FrameHeight:          360,
		JPEGQuality:          0.8,
		MaxInFlight:          1,
		MaxAnalysesPerMinute: 0,
		AnalysisTimeout:      60 * time.Second,
		Prompt:               DefaultPrompt,
		Backend:              BackendGemini,
		GeminiURL:            DefaultGeminiURL,
		OllamaURL:            "http://localhost",
		OllamaPort:           11434,
		OllamaModel:          "llama3.2-vision:11b",
		OutputDir:            "output",
		Archive:              ArchiveNone,
		SQLitePath:           "motionwatch.sqlite3",
		LogLevel:             "info",
	}
}

// Load reads path (optional, may be empty or missing) and then applies
// environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
			}
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Interval returns the tick period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.FrameCheckInterval) * time.Millisecond
}

// JPEGQualityPercent converts the 0..1 quality to the 1..100 scale used by encoders.
func (c *Config) JPEGQualityPercent() int {
	q := int(c.JPEGQuality*100 + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// Validate clamps numeric values to safe ranges and rejects unknown
// backend or archive names.
func (c *Config) Validate() error {
	d := Default()
	if c.FrameCheckInterval <= 0 {
		c.FrameCheckInterval = d.FrameCheckInterval
	}
	if c.MotionThreshold < 0 {
		c.MotionThreshold = d.MotionThreshold
	}
	if c.SamplingStride <= 0 {
		c.SamplingStride = d.SamplingStride
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		c.FrameWidth, c.FrameHeight = d.FrameWidth, d.FrameHeight
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 1 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.MaxInFlight < 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.MaxAnalysesPerMinute < 0 {
		c.MaxAnalysesPerMinute = 0
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = d.AnalysisTimeout
	}
	if c.Prompt == "" {
		c.Prompt = d.Prompt
	}
	if c.OllamaPort <= 0 {
		c.OllamaPort = d.OllamaPort
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Archive == "" {
		c.Archive = d.Archive
	}

	switch c.Backend {
	case BackendGemini:
		if c.GeminiURL == "" {
			c.GeminiURL = d.GeminiURL
		}
	case BackendOllama:
	default:
		return fmt.Errorf("unknown analyzer backend %q", c.Backend)
	}

	switch c.Archive {
	case ArchiveNone, ArchiveSQLite:
	case ArchivePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("archive %q requires database_url", c.Archive)
		}
	default:
		return fmt.Errorf("unknown archive %q", c.Archive)
	}
	return nil
}
