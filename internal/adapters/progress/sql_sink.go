package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// SQLSink stores progress events in SQLite or MySQL. Timestamps are kept as
// unix nanoseconds so both dialects share the same queries.
type SQLSink struct {
	db          *sql.DB
	dialect     string
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS progress_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			receipt_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			stage TEXT NOT NULL,
			message TEXT NOT NULL,
			progress INTEGER NOT NULL,
			details TEXT,
			emitted_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_receipt ON progress_events(receipt_id)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_expires_at ON progress_events(expires_at)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS progress_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			receipt_id VARCHAR(64) NOT NULL,
			agent VARCHAR(32) NOT NULL,
			stage VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			progress INT NOT NULL,
			details JSON,
			emitted_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_progress_receipt (receipt_id),
			INDEX idx_progress_expires_at (expires_at)
		)`,
	},
}

// NewSQLiteSink creates a progress sink backed by a SQLite file
func NewSQLiteSink(dbPath string, ttl, cleanupFreq time.Duration, logger *zap.Logger) (*SQLSink, error) {
	return newSQLSink("sqlite3", dbPath, ttl, cleanupFreq, logger)
}

// NewMySQLSink creates a progress sink backed by MySQL
func NewMySQLSink(dsn string, ttl, cleanupFreq time.Duration, logger *zap.Logger) (*SQLSink, error) {
	return newSQLSink("mysql", dsn, ttl, cleanupFreq, logger)
}

func newSQLSink(dialect, dsn string, ttl, cleanupFreq time.Duration, logger *zap.Logger) (*SQLSink, error) {
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	for _, stmt := range schemas[dialect] {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create progress schema: %w", err)
		}
	}

	s := &SQLSink{
		db:          db,
		dialect:     dialect,
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go runCleanup(s, cleanupFreq, s.stopCh, logger)
	}

	return s, nil
}

// Emit inserts the event
func (s *SQLSink) Emit(ctx context.Context, event core.ProgressEvent) error {
	var details any
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode progress details: %w", err)
		}
		details = string(raw)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_events (receipt_id, agent, stage, message, progress, details, emitted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ReceiptID, event.Agent, event.Stage, event.Message, event.Progress, details,
		ts.UnixNano(), time.Now().Add(s.ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert progress event: %w", err)
	}
	return nil
}

// Latest returns the most recent event for a receipt
func (s *SQLSink) Latest(ctx context.Context, receiptID string) (*core.ProgressEvent, error) {
	events, err := s.query(ctx, `
		SELECT receipt_id, agent, stage, message, progress, details, emitted_at
		FROM progress_events
		WHERE receipt_id = ? AND expires_at > ?
		ORDER BY id DESC LIMIT 1
	`, receiptID, time.Now().UnixNano())
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// History returns every retained event for a receipt in emission order
func (s *SQLSink) History(ctx context.Context, receiptID string) ([]core.ProgressEvent, error) {
	return s.query(ctx, `
		SELECT receipt_id, agent, stage, message, progress, details, emitted_at
		FROM progress_events
		WHERE receipt_id = ? AND expires_at > ?
		ORDER BY id
	`, receiptID, time.Now().UnixNano())
}

func (s *SQLSink) query(ctx context.Context, q string, args ...any) ([]core.ProgressEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress events: %w", err)
	}
	defer rows.Close()

	events := []core.ProgressEvent{}
	for rows.Next() {
		var (
			e         core.ProgressEvent
			details   sql.NullString
			emittedAt int64
		)
		if err := rows.Scan(&e.ReceiptID, &e.Agent, &e.Stage, &e.Message, &e.Progress, &details, &emittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress event: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				s.logger.Warn("Failed to decode progress details", zap.Error(err))
			}
		}
		e.Timestamp = time.Unix(0, emittedAt).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup removes expired events
func (s *SQLSink) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM progress_events WHERE expires_at <= ?
	`, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to clean up expired progress events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired progress events", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (s *SQLSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close progress database", zap.Error(err), zap.String("dialect", s.dialect))
		}
	})
}
