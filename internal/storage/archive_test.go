package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionwatch/internal/models"
)

type memArchive struct {
	mu       sync.Mutex
	findings []models.Finding
	flushed  int
	block    chan struct{}
	fail     bool
}

func (m *memArchive) AddFinding(ctx context.Context, f models.Finding) error {
	if m.block != nil {
		<-m.block
	}
	if m.fail {
		return errors.New("archive down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, f)
	return nil
}

func (m *memArchive) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
	return nil
}

func (m *memArchive) Close() error { return nil }

func (m *memArchive) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.findings)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_DeliversAndDrainsOnClose(t *testing.T) {
	arch := &memArchive{}
	q := NewQueue(arch, 2, 10, quietLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Submit(finding("0:01", "Overcrowding")))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 5, arch.count())
	assert.Equal(t, 1, arch.flushed)

	assert.Error(t, q.Submit(finding("0:02", "late")))
	assert.NoError(t, q.Close(context.Background()))
}

func TestQueue_DropsWhenFull(t *testing.T) {
	arch := &memArchive{block: make(chan struct{})}
	q := NewQueue(arch, 1, 1, quietLogger())

	// the worker takes the first finding and blocks; the second fills the buffer
	require.NoError(t, q.Submit(finding("0:01", "a")))
	require.Eventually(t, func() bool { return len(q.work) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Submit(finding("0:02", "b")))
	assert.ErrorIs(t, q.Submit(finding("0:03", "c")), ErrQueueFull)

	close(arch.block)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 2, arch.count())
}

func TestQueue_ArchiveErrorsAreContained(t *testing.T) {
	arch := &memArchive{fail: true}
	q := NewQueue(arch, 1, 4, quietLogger())
	require.NoError(t, q.Submit(finding("0:01", "a")))
	require.NoError(t, q.Close(context.Background()))
	assert.Zero(t, arch.count())
}

func TestSQLiteArchive(t *testing.T) {
	arch, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.sqlite3"))
	require.NoError(t, err)
	defer arch.Close()

	ctx := context.Background()
	sig := []float32{0.1, 0.2, 0.3, 0.4}
	require.NoError(t, arch.AddFinding(ctx, models.Finding{
		Timestamp: "0:05",
		Analysis:  "Overcrowding",
		SessionID: "s1",
		Media:     "ward.mp4",
		Position:  5200 * time.Millisecond,
		Signature: sig,
	}))
	require.NoError(t, arch.AddFinding(ctx, models.Finding{Timestamp: "0:09", Analysis: "Spill", SessionID: "s1", Media: "ward.mp4"}))
	require.NoError(t, arch.AddFinding(ctx, models.Finding{Timestamp: "0:01", Analysis: "Other", SessionID: "s2", Media: "lobby.mp4"}))
	require.NoError(t, arch.Flush(ctx))

	rows, err := arch.SessionFindings(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0:05", rows[0].Timestamp)
	assert.Equal(t, int64(5200), rows[0].PositionMs)
	assert.Equal(t, sig, rows[0].Signature)
	assert.False(t, rows[0].DetectedAt.IsZero())
	assert.Equal(t, "Spill", rows[1].Analysis)
}

func TestPostgresArchive(t *testing.T) {
	dsn := os.Getenv("MOTIONWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MOTIONWATCH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, InitSchema(ctx, dsn))

	arch, err := NewPostgresArchive(ctx, dsn)
	require.NoError(t, err)
	defer arch.Close()

	sig := make([]float32, 16)
	sig[0] = 1
	session := "test-" + time.Now().Format("150405.000000")
	require.NoError(t, arch.AddFinding(ctx, models.Finding{
		Timestamp: "0:05", Analysis: "Overcrowding", SessionID: session, Media: "ward.mp4", Signature: sig,
	}))

	results, err := arch.SearchSimilar(ctx, sig, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}
