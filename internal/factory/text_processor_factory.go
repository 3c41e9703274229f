package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// TextProcessorFactory creates the OCR text processor shared by the vision and
// reputation stages
type TextProcessorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTextProcessorFactory creates a new TextProcessorFactory
func NewTextProcessorFactory(cfg *config.Config, logger *zap.Logger) *TextProcessorFactory {
	return &TextProcessorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a TextProcessor with the configured extraction limits
func (f *TextProcessorFactory) CreateTextProcessor() *utils.TextProcessor {
	textCfg := f.cfg.GetText()

	f.logger.Debug("Text processor configured",
		zap.Int("merchant_scan_lines", textCfg.MerchantScanLines),
		zap.Int("max_ocr_text_bytes", textCfg.MaxOCRTextBytes))

	return utils.NewTextProcessor(f.logger).WithLimits(textCfg.MerchantScanLines, textCfg.MaxOCRTextBytes)
}
