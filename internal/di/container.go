package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/metadata"
	"github.com/mikey/receipt-forensics/internal/adapters/reputation"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/factory"
	"github.com/mikey/receipt-forensics/internal/forensics"
	"github.com/mikey/receipt-forensics/internal/logging"
	"github.com/mikey/receipt-forensics/internal/merchant"
	"github.com/mikey/receipt-forensics/internal/metrics"
	"github.com/mikey/receipt-forensics/internal/ports"
	"github.com/mikey/receipt-forensics/internal/trust"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register receipt intake
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.IntakeFactory) (ports.ReceiptIntake, error) {
		return f.CreateIntake()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// providePipeline registers everything between configuration and intake:
// stages, storage, metrics and the analysis service
func providePipeline(container *dig.Container) error {
	providers := []any{
		metrics.New,
		factory.NewTextProcessorFactory,
		func(f *factory.TextProcessorFactory) *utils.TextProcessor {
			return f.CreateTextProcessor()
		},
		factory.NewStorageFactory,
		func(f *factory.StorageFactory) (ports.ProgressRepository, error) {
			return f.CreateProgressRepository()
		},
		func(f *factory.StorageFactory) (ports.FraudReportRepository, error) {
			return f.CreateFraudReportRepository()
		},

		// Stages
		factory.NewVisionFactory,
		func(f *factory.VisionFactory) (core.VisionStage, error) {
			return f.CreateVisionStage()
		},
		func(cfg *config.Config, logger *zap.Logger) core.MetadataStage {
			return metadata.NewStage(cfg.GetMetadata().EditingSoftware, logger)
		},
		func(cfg *config.Config, logger *zap.Logger) core.ForensicStage {
			return forensics.NewAnalyzer(cfg.GetForensics(), logger)
		},
		func(cfg *config.Config, logger *zap.Logger) *merchant.Verifier {
			return merchant.NewVerifier(cfg.GetReputation().VerifiedMerchants, logger)
		},
		func(store ports.FraudReportRepository, v *merchant.Verifier, tp *utils.TextProcessor, logger *zap.Logger) core.ReputationStage {
			return reputation.NewStage(store, v, tp, logger)
		},
		func(cfg *config.Config, logger *zap.Logger) core.TrustSynthesizer {
			return trust.NewSynthesizer(cfg.GetTrust(), logger)
		},

		// Analysis service
		func(
			vision core.VisionStage,
			meta core.MetadataStage,
			forensic core.ForensicStage,
			rep core.ReputationStage,
			synth core.TrustSynthesizer,
			sink ports.ProgressRepository,
			m *metrics.Metrics,
			cfg *config.Config,
			logger *zap.Logger,
		) *core.ReceiptAnalysisService {
			return core.NewReceiptAnalysisService(
				core.Stages{
					Vision:     vision,
					Metadata:   meta,
					Forensic:   forensic,
					Reputation: rep,
				},
				synth,
				sink,
				m,
				cfg.GetOrchestrator(),
				logger,
			)
		},
		func(s *core.ReceiptAnalysisService) ports.ReceiptAnalyzer {
			return s
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}
