package ports

import (
	"context"

	"github.com/mikey/receipt-forensics/internal/core"
)

// FraudReportRepository stores fraud reports filed against bank accounts
type FraudReportRepository interface {
	// Add stores a report
	Add(ctx context.Context, report *core.FraudReport) error

	// CountVerified returns the number of verified reports for an account
	CountVerified(ctx context.Context, account string) (int, error)

	// Stop releases the underlying storage
	Stop()
}
