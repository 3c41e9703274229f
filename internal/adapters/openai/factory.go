package openai

import (
	"errors"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// Factory creates new instances of OpenAIClient
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for OpenAIClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateVisionClient creates a new OpenAIClient
func (f *Factory) CreateVisionClient() (*OpenAIClient, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" && openaiCfg.BaseURL == "" {
		return nil, errMissingKey
	}

	return NewOpenAIClient(
		openaiCfg.APIKey,
		openaiCfg.BaseURL,
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		openaiCfg.TopP,
		f.cfg.GetVision().MaxImageBytes,
		f.cfg.GetTrust().MinTextLength,
		f.logger,
		f.textProcessor,
	), nil
}

var errMissingKey = errors.New("openai.api_key is required")
