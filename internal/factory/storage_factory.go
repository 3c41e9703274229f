package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/progress"
	"github.com/mikey/receipt-forensics/internal/adapters/reputation"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/metrics"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// StorageFactory creates the progress and fraud report repositories
type StorageFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *StorageFactory {
	return &StorageFactory{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// CreateProgressRepository creates a progress repository based on the configuration
func (f *StorageFactory) CreateProgressRepository() (ports.ProgressRepository, error) {
	progressCfg := f.cfg.GetProgress()

	var (
		repo ports.ProgressRepository
		err  error
	)
	switch progressCfg.Type {
	case "log":
		repo = progress.NewLogSink(f.logger)
	case "memory":
		repo = progress.NewMemorySink(progressCfg.TTL, progressCfg.CleanupFrequency, f.logger)
	case "sqlite":
		if err := ensureDir(progressCfg.SQLitePath); err != nil {
			return nil, err
		}
		repo, err = progress.NewSQLiteSink(progressCfg.SQLitePath, progressCfg.TTL, progressCfg.CleanupFrequency, f.logger)
	case "mysql":
		repo, err = progress.NewMySQLSink(progressCfg.MySQLDSN, progressCfg.TTL, progressCfg.CleanupFrequency, f.logger)
	default:
		return nil, fmt.Errorf("unsupported progress type: %s", progressCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return progress.NewInstrumented(repo, f.metrics), nil
}

// CreateFraudReportRepository creates a fraud report repository based on the configuration
func (f *StorageFactory) CreateFraudReportRepository() (ports.FraudReportRepository, error) {
	repCfg := f.cfg.GetReputation()

	switch repCfg.Store {
	case "memory":
		return reputation.NewMemoryStore(f.logger), nil
	case "sqlite":
		if err := ensureDir(repCfg.SQLitePath); err != nil {
			return nil, err
		}
		return reputation.NewSQLiteStore(repCfg.SQLitePath, f.logger)
	case "mysql":
		return reputation.NewMySQLStore(repCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported reputation store: %s", repCfg.Store)
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create SQLite directory: %w", err)
	}
	return nil
}
