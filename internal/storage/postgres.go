package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/motionwatch/internal/models"
	"github.com/bdougie/motionwatch/internal/motion"
)

// SimilarFinding is a row returned by SearchSimilar.
type SimilarFinding struct {
	SessionID  string
	Media      string
	Timestamp  string
	Analysis   string
	Similarity float64
}

// PostgresArchive writes findings and their frame signatures to PostgreSQL
// with pgvector.
type PostgresArchive struct {
	pool     *pgxpool.Pool
	sessions sync.Map // session ids already inserted
}

// NewPostgresArchive connects to databaseURL and verifies the connection.
func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresArchive{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresArchive) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ensureSession inserts the session row once per process.
func (s *PostgresArchive) ensureSession(ctx context.Context, f models.Finding) error {
	if _, ok := s.sessions.Load(f.SessionID); ok {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, media, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		f.SessionID, f.Media, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create session entry: %w", err)
	}
	s.sessions.Store(f.SessionID, struct{}{})
	return nil
}

// AddFinding stores a finding with its frame signature.
func (s *PostgresArchive) AddFinding(ctx context.Context, f models.Finding) error {
	if err := s.ensureSession(ctx, f); err != nil {
		return err
	}

	sig := f.Signature
	if len(sig) != motion.SignatureGrid*motion.SignatureGrid {
		sig = make([]float32, motion.SignatureGrid*motion.SignatureGrid)
	}

	detectedAt := f.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO findings
		(session_id, timestamp, position_ms, analysis, signature, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.SessionID, f.Timestamp, f.Position.Milliseconds(), f.Analysis,
		pgvector.NewVector(sig), detectedAt)
	if err != nil {
		return fmt.Errorf("failed to store finding: %w", err)
	}
	return nil
}

// Flush is a no-op for Postgres as findings are saved immediately
func (s *PostgresArchive) Flush(ctx context.Context) error {
	return nil
}

// SearchSimilar returns archived findings whose frames look most like sig.
func (s *PostgresArchive) SearchSimilar(ctx context.Context, sig []float32, limit int) ([]SimilarFinding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.session_id, s.media, f.timestamp, f.analysis,
        1 - (f.signature <=> $1) AS similarity
        FROM findings f
        JOIN sessions s ON f.session_id = s.id
        ORDER BY f.signature <=> $1
        LIMIT $2`,
		pgvector.NewVector(sig), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar findings: %w", err)
	}
	defer rows.Close()

	var results []SimilarFinding
	for rows.Next() {
		var r SimilarFinding
		if err := rows.Scan(&r.SessionID, &r.Media, &r.Timestamp, &r.Analysis, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// InitSchema creates the archive schema if it doesn't exist
func InitSchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            media TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS findings (
            id SERIAL PRIMARY KEY,
            session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
            timestamp TEXT NOT NULL,
            position_ms BIGINT NOT NULL,
            analysis TEXT NOT NULL,
            signature vector(%d),
            detected_at TIMESTAMPTZ NOT NULL
        );

        CREATE INDEX IF NOT EXISTS idx_findings_session_id ON findings(session_id);
    `, motion.SignatureGrid*motion.SignatureGrid))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	return nil
}
