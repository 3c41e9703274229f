package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/intake"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/di"
	"github.com/mikey/receipt-forensics/internal/ports"
)

func main() {
	flags := di.ParseFlags()
	if flags.InputFile == "" {
		flags.InputFile = flag.Arg(0)
	}
	if flags.InputFile == "" {
		fmt.Fprintln(os.Stderr, "usage: receipt-check -file <image> [flags]")
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	if err := container.Invoke(func(
		logger *zap.Logger,
		cli *intake.CLIIntake,
		progressRepo ports.ProgressRepository,
	) error {
		defer logger.Sync()
		defer progressRepo.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := cli.Analyze(ctx, flags.InputFile, flags.ReceiptID)
		if err != nil {
			return err
		}
		if report.Assessment.Verdict == core.VerdictFraudulent {
			exitCode = 3
		}
		return nil
	}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
