package reputation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// ErrInvalidReport is returned when a report has no account
var ErrInvalidReport = errors.New("fraud report requires an account")

// MemoryStore is an in-memory implementation of the FraudReportRepository interface
type MemoryStore struct {
	reports map[string][]core.FraudReport
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory fraud report store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		reports: make(map[string][]core.FraudReport),
		logger:  logger,
	}
}

// Add stores a report
func (s *MemoryStore) Add(ctx context.Context, report *core.FraudReport) error {
	if err := prepare(report); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.Account] = append(s.reports[report.Account], *report)
	return nil
}

// CountVerified returns the number of verified reports for an account
func (s *MemoryStore) CountVerified(ctx context.Context, account string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reports[account] {
		if r.Verified {
			count++
		}
	}
	return count, nil
}

// Stop is a no-op for the memory store
func (s *MemoryStore) Stop() {}

// prepare validates a report and fills its ID and timestamp
func prepare(report *core.FraudReport) error {
	if report == nil || report.Account == "" {
		return ErrInvalidReport
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = time.Now().UTC()
	}
	return nil
}
