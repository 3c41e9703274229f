package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/di"
	"github.com/mikey/receipt-forensics/internal/ports"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	receiptIntake ports.ReceiptIntake,
	vision core.VisionStage,
	progressRepo ports.ProgressRepository,
	reports ports.FraudReportRepository,
) error {
	defer logger.Sync()

	if err := receiptIntake.Start(); err != nil {
		logger.Error("Failed to start intake", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := receiptIntake.Stop(); err != nil {
		logger.Error("Failed to stop intake", zap.Error(err))
	}

	if closer, ok := vision.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close vision client", zap.Error(err))
		}
	}

	progressRepo.Stop()
	reports.Stop()

	logger.Info("Shutdown complete")
	return nil
}
