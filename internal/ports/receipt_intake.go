package ports

import (
	"context"

	"github.com/mikey/receipt-forensics/internal/core"
)

// ReceiptAnalyzer runs the full analysis pipeline on one receipt
type ReceiptAnalyzer interface {
	AnalyzeReceipt(ctx context.Context, imagePath, receiptID string) (*core.AnalysisReport, error)
	AnalyzeImage(ctx context.Context, img core.ImageInput) (*core.AnalysisReport, error)
}

// ReceiptIntake defines the interface for the ways receipts enter the system
type ReceiptIntake interface {
	// Start starts accepting receipts
	Start() error

	// Stop stops accepting receipts
	Stop() error
}
