package gemini

import (
	"errors"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/utils"
)

var errMissingKey = errors.New("gemini.api_key is required")

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateVisionClient creates a new GeminiClient
func (f *Factory) CreateVisionClient() (*GeminiClient, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, errMissingKey
	}

	return NewGeminiClient(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		f.cfg.GetVision().MaxImageBytes,
		f.cfg.GetTrust().MinTextLength,
		f.logger,
		f.textProcessor,
	)
}
