package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bdougie/motionwatch/internal/models"
)

// ArchivedFinding is the SQLite row for an archived finding.
type ArchivedFinding struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"index;not null"`
	Media      string    `gorm:"not null"`
	Timestamp  string    `gorm:"not null"`
	PositionMs int64     `gorm:"not null"`
	Analysis   string    `gorm:"not null"`
	Signature  []float32 `gorm:"serializer:json"`
	DetectedAt time.Time `gorm:"not null"`
}

// SQLiteArchive keeps archived findings in a local SQLite file.
type SQLiteArchive struct {
	DB *gorm.DB
}

// NewSQLiteArchive opens (or creates) the database at path and migrates it.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite archive: %w", err)
	}
	if err := db.AutoMigrate(&ArchivedFinding{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite archive: %w", err)
	}
	return &SQLiteArchive{DB: db}, nil
}

func (s *SQLiteArchive) AddFinding(ctx context.Context, f models.Finding) error {
	detectedAt := f.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}
	row := ArchivedFinding{
		SessionID:  f.SessionID,
		Media:      f.Media,
		Timestamp:  f.Timestamp,
		PositionMs: f.Position.Milliseconds(),
		Analysis:   f.Analysis,
		Signature:  f.Signature,
		DetectedAt: detectedAt,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to store finding: %w", err)
	}
	return nil
}

func (s *SQLiteArchive) Flush(ctx context.Context) error { return nil }

// SessionFindings lists archived findings of one session in detection order.
func (s *SQLiteArchive) SessionFindings(ctx context.Context, sessionID string) ([]ArchivedFinding, error) {
	var rows []ArchivedFinding
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	return rows, nil
}

func (s *SQLiteArchive) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
