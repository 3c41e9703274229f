package reputation

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// MySQLStore is a MySQL implementation of the FraudReportRepository interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL fraud report store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fraud_reports (
			id VARCHAR(36) PRIMARY KEY,
			account VARCHAR(32) NOT NULL,
			reason TEXT,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			reported_at TIMESTAMP NOT NULL,
			INDEX idx_fraud_reports_account (account)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// Add stores a report
func (s *MySQLStore) Add(ctx context.Context, report *core.FraudReport) error {
	if err := prepare(report); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_reports (id, account, reason, verified, reported_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			account = VALUES(account),
			reason = VALUES(reason),
			verified = VALUES(verified),
			reported_at = VALUES(reported_at)
	`, report.ID, report.Account, report.Reason, report.Verified, report.ReportedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fraud report: %w", err)
	}
	return nil
}

// CountVerified returns the number of verified reports for an account
func (s *MySQLStore) CountVerified(ctx context.Context, account string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fraud_reports WHERE account = ? AND verified = TRUE
	`, account).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fraud reports: %w", err)
	}
	return count, nil
}

// Stop closes the database connection
func (s *MySQLStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
