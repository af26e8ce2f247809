package extractor

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// Stills is a sequence of pre-extracted JPEG frames (frame_0001.jpg, ...)
// spaced Interval apart, played back as if it were a video.
type Stills struct {
	Dir      string
	Frames   []string // sorted file names
	Interval time.Duration
	Width    int
	Height   int
}

// OpenStills lists the JPEG frames in dir.
func OpenStills(dir string, interval time.Duration, width, height int) (*Stills, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory '%s': %w", dir, err)
	}

	var frames []string
	for _, file := range files {
		name := strings.ToLower(file.Name())
		if !file.IsDir() && (strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg")) {
			frames = append(frames, file.Name())
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no JPEG frames found in directory '%s'", dir)
	}
	sort.Strings(frames)

	if interval <= 0 {
		interval = time.Second
	}
	return &Stills{Dir: dir, Frames: frames, Interval: interval, Width: width, Height: height}, nil
}

// Duration is the playback length of the sequence.
func (s *Stills) Duration() time.Duration {
	return time.Duration(len(s.Frames)) * s.Interval
}

// FrameAt loads the frame shown at position at, scaled to the capture size.
func (s *Stills) FrameAt(at time.Duration) (*image.RGBA, error) {
	idx := int(at / s.Interval)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Frames) {
		idx = len(s.Frames) - 1
	}
	return LoadFrame(filepath.Join(s.Dir, s.Frames[idx]), s.Width, s.Height)
}

// LoadFrame decodes an image file and scales it to width x height.
func LoadFrame(path string, width, height int) (*image.RGBA, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame '%s': %w", path, err)
	}
	return ToRGBA(src, width, height), nil
}

// ToRGBA scales img to width x height when needed and returns it as RGBA.
func ToRGBA(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Linear)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
