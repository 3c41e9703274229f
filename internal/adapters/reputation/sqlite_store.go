package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// SQLiteStore is a SQLite implementation of the FraudReportRepository interface
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite fraud report store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fraud_reports (
			id TEXT PRIMARY KEY,
			account TEXT NOT NULL,
			reason TEXT,
			verified BOOLEAN NOT NULL DEFAULT 0,
			reported_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fraud_reports_account ON fraud_reports(account)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Add stores a report
func (s *SQLiteStore) Add(ctx context.Context, report *core.FraudReport) error {
	if err := prepare(report); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fraud_reports (id, account, reason, verified, reported_at)
		VALUES (?, ?, ?, ?, ?)
	`, report.ID, report.Account, report.Reason, report.Verified, report.ReportedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert fraud report: %w", err)
	}
	return nil
}

// CountVerified returns the number of verified reports for an account
func (s *SQLiteStore) CountVerified(ctx context.Context, account string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fraud_reports WHERE account = ? AND verified = 1
	`, account).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fraud reports: %w", err)
	}
	return count, nil
}

// Stop closes the database connection
func (s *SQLiteStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
