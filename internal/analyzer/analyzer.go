package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/bdougie/motionwatch/internal/models"
)

// MimeJPEG is the only image encoding sent to analyzers.
const MimeJPEG = "image/jpeg"

// Image is an encoded frame ready for transport.
type Image struct {
	MimeType string
	Data     []byte
}

// Backend sends one image and prompt to a vision model and returns its
// free-text verdict.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, img Image, prompt string) (string, error)
}

// Invoker encodes snapshots and hands them to a Backend. It is safe for
// concurrent use when the Backend is.
type Invoker struct {
	backend Backend
	quality int
	logger  *slog.Logger
}

// NewInvoker returns an Invoker encoding JPEGs at quality (1..100).
func NewInvoker(backend Backend, quality int, logger *slog.Logger) *Invoker {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Invoker{
		backend: backend,
		quality: quality,
		logger:  logger.With("component", "analyzer", "backend", backend.Name()),
	}
}

// Invoke encodes snap and returns the backend's verdict. No retry is
// attempted.
func (i *Invoker) Invoke(ctx context.Context, snap models.Snapshot, prompt string) (string, error) {
	if snap.Image == nil {
		return "", fmt.Errorf("snapshot has no image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, snap.Image, imaging.JPEG, imaging.JPEGQuality(i.quality)); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}

	timestamp := models.FormatTimestamp(snap.Position)
	i.logger.Debug("sending frame", "timestamp", timestamp, "bytes", buf.Len())

	verdict, err := i.backend.Analyze(ctx, Image{MimeType: MimeJPEG, Data: buf.Bytes()}, prompt)
	if err != nil {
		return "", err
	}

	i.logger.Debug("received verdict", "timestamp", timestamp, "verdict", verdict)
	return verdict, nil
}
