package reputation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/merchant"
	"github.com/mikey/receipt-forensics/internal/ports"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// Stage looks up fraud history for the accounts printed on a receipt and
// checks its merchant against the verified list
type Stage struct {
	store         ports.FraudReportRepository
	verifier      *merchant.Verifier
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewStage creates a new reputation stage
func NewStage(
	store ports.FraudReportRepository,
	verifier *merchant.Verifier,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		store:         store,
		verifier:      verifier,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

// Analyze implements core.ReputationStage
func (s *Stage) Analyze(ctx context.Context, text string) (*core.ReputationResult, error) {
	accounts := s.textProcessor.ExtractAccounts(text)
	result := &core.ReputationResult{AccountsAnalyzed: accounts}

	for _, account := range accounts {
		n, err := s.store.CountVerified(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to look up account %s: %w", account, err)
		}
		result.TotalFraudReports += n
	}

	if name := s.textProcessor.ExtractMerchant(text); name != "" {
		result.Merchant = &core.MerchantInfo{
			Name:     name,
			Verified: s.verifier.IsVerified(name),
		}
	}

	s.logger.Debug("Reputation check complete",
		zap.Strings("accounts", accounts),
		zap.Int("fraud_reports", result.TotalFraudReports))

	return result, nil
}
