package extractor

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec and folds stderr into errors.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %v\nOutput: %s", name, err, stderr.String())
	}
	return out, nil
}

// Grabber decodes single frames of a video file into fixed-size RGBA images.
type Grabber struct {
	Width, Height int
	Run           Runner
}

// NewGrabber returns a Grabber that scales frames to width x height.
func NewGrabber(width, height int) *Grabber {
	return &Grabber{Width: width, Height: height, Run: ExecRunner}
}

// GrabFrame decodes the frame of videoPath at position at.
func (g *Grabber) GrabFrame(ctx context.Context, videoPath string, at time.Duration) (*image.RGBA, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}

	out, err := g.Run(ctx,
		"ffmpeg",
		"-v", "error",
		"-ss", formatSeek(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", g.Width, g.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	if err != nil {
		return nil, err
	}

	want := g.Width * g.Height * 4
	if len(out) < want {
		return nil, fmt.Errorf("short frame at %s: got %d bytes, want %d", formatSeek(at), len(out), want)
	}

	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	copy(img.Pix, out[:want])
	return img, nil
}

// Probe returns the duration of videoPath using ffprobe.
func Probe(ctx context.Context, run Runner, videoPath string) (time.Duration, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return 0, fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}
	out, err := run(ctx,
		"ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}

func formatSeek(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
