package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/bedrock"
	"github.com/mikey/receipt-forensics/internal/adapters/gemini"
	"github.com/mikey/receipt-forensics/internal/adapters/openai"
	"github.com/mikey/receipt-forensics/internal/adapters/vision"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// VisionFactory creates vision stages
type VisionFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewVisionFactory creates a new vision factory
func NewVisionFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *VisionFactory {
	return &VisionFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateVisionStage creates the configured provider client wrapped in the
// retry policy
func (f *VisionFactory) CreateVisionStage() (core.VisionStage, error) {
	visionCfg := f.cfg.GetVision()

	var (
		client core.VisionStage
		err    error
	)
	switch visionCfg.Provider {
	case "bedrock":
		client, err = bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateVisionClient()
	case "gemini":
		client, err = gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateVisionClient()
	case "openai":
		client, err = openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateVisionClient()
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", visionCfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Vision provider configured",
		zap.String("provider", visionCfg.Provider),
		zap.Int("max_attempts", visionCfg.MaxAttempts))

	return vision.NewRetrying(client, visionCfg.MaxAttempts, visionCfg.InitialBackoff, f.logger), nil
}
