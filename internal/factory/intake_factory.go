package factory

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/intake"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// IntakeFactory creates receipt intakes based on configuration
type IntakeFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	analyzer ports.ReceiptAnalyzer
	progress ports.ProgressRepository
	reports  ports.FraudReportRepository
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(
	cfg *config.Config,
	logger *zap.Logger,
	analyzer ports.ReceiptAnalyzer,
	progressRepo ports.ProgressRepository,
	reports ports.FraudReportRepository,
) *IntakeFactory {
	return &IntakeFactory{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		progress: progressRepo,
		reports:  reports,
	}
}

// CreateIntake creates a receipt intake based on the configuration
func (f *IntakeFactory) CreateIntake() (ports.ReceiptIntake, error) {
	intakeCfg := f.cfg.GetIntake()

	switch intakeCfg.Type {
	case "http":
		return intake.NewHTTPIntake(
			f.analyzer,
			f.progress,
			f.reports,
			prometheus.DefaultGatherer,
			f.logger,
			intakeCfg.ListenAddress,
			intakeCfg.MaxUploadBytes,
		), nil
	case "smtp":
		orch := f.cfg.GetOrchestrator()
		return intake.NewSMTPIntake(
			f.analyzer,
			f.logger,
			intakeCfg.SMTP,
			orch.StageTimeout+orch.ForensicTimeout,
		), nil
	case "cli":
		return f.CreateCLIIntake(), nil
	default:
		return nil, fmt.Errorf("unsupported intake type: %s", intakeCfg.Type)
	}
}

// CreateCLIIntake creates the single-file CLI intake writing to stdout
func (f *IntakeFactory) CreateCLIIntake() *intake.CLIIntake {
	return intake.NewCLIIntake(
		f.analyzer,
		f.logger,
		os.Stdout,
		f.cfg.GetBool("cli.json"),
		f.cfg.GetBool("cli.verbose"),
	)
}
