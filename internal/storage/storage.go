package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bdougie/motionwatch/internal/models"
)

// ExportFileName is the name of the exported alert file.
const ExportFileName = "abnormal-events.txt"

// ErrEmptyExport is returned when an export is requested with no findings.
var ErrEmptyExport = errors.New("no alerts to export")

// FindingLog is the in-memory, append-only log of abnormal findings.
// It is safe for concurrent use.
type FindingLog struct {
	mu       sync.Mutex
	findings []models.Finding
}

// NewFindingLog creates an empty log
func NewFindingLog() *FindingLog {
	return &FindingLog{}
}

// Record appends f unless its trimmed analysis is exactly NORMAL. It
// reports whether the finding was stored.
func (l *FindingLog) Record(f models.Finding) bool {
	if strings.TrimSpace(f.Analysis) == models.NormalVerdict {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.findings = append(l.findings, f)
	return true
}

// Len returns the number of stored findings.
func (l *FindingLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.findings)
}

// Findings returns a copy of the log in detection order.
func (l *FindingLog) Findings() []models.Finding {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Finding, len(l.findings))
	copy(out, l.findings)
	return out
}

// Latest returns up to n findings, most recent first. n <= 0 returns all.
func (l *FindingLog) Latest(n int) []models.Finding {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.findings) {
		n = len(l.findings)
	}
	out := make([]models.Finding, 0, n)
	for i := len(l.findings) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.findings[i])
	}
	return out
}

// Clear empties the log.
func (l *FindingLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.findings = nil
}

// ExportAll renders one "<timestamp> - <analysis>" line per finding in
// detection order. An empty log yields ErrEmptyExport.
func (l *FindingLog) ExportAll() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.findings) == 0 {
		return "", ErrEmptyExport
	}
	lines := make([]string, len(l.findings))
	for i, f := range l.findings {
		lines[i] = f.Line()
	}
	return strings.Join(lines, "\n"), nil
}

// WriteExport writes the export to outputDir/abnormal-events.txt and
// returns the file path. No file is created for an empty log.
func (l *FindingLog) WriteExport(outputDir string) (string, error) {
	data, err := l.ExportAll()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	path := filepath.Join(outputDir, ExportFileName)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
