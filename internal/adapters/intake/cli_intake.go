package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// CLIIntake analyzes a single receipt file and prints the report
type CLIIntake struct {
	analyzer ports.ReceiptAnalyzer
	logger   *zap.Logger
	out      io.Writer
	asJSON   bool
	verbose  bool
}

// NewCLIIntake creates a new CLI intake writing to out
func NewCLIIntake(analyzer ports.ReceiptAnalyzer, logger *zap.Logger, out io.Writer, asJSON, verbose bool) *CLIIntake {
	return &CLIIntake{
		analyzer: analyzer,
		logger:   logger,
		out:      out,
		asJSON:   asJSON,
		verbose:  verbose,
	}
}

// Analyze runs the pipeline on path and prints the report
func (c *CLIIntake) Analyze(ctx context.Context, path, receiptID string) (*core.AnalysisReport, error) {
	c.logger.Debug("Analyzing receipt", zap.String("path", path))

	report, err := c.analyzer.AnalyzeReceipt(ctx, path, receiptID)
	if err != nil {
		c.logger.Error("Failed to analyze receipt", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return report, enc.Encode(report)
	}

	c.print(path, report)
	return report, nil
}

var verdictColors = map[core.Verdict]*color.Color{
	core.VerdictAuthentic:  color.New(color.FgGreen, color.Bold),
	core.VerdictUnclear:    color.New(color.FgYellow, color.Bold),
	core.VerdictSuspicious: color.New(color.FgHiYellow, color.Bold),
	core.VerdictFraudulent: color.New(color.FgRed, color.Bold),
}

var severityColors = map[core.Severity]*color.Color{
	core.SeverityLow:    color.New(color.FgCyan),
	core.SeverityMedium: color.New(color.FgYellow),
	core.SeverityHigh:   color.New(color.FgRed),
}

func (c *CLIIntake) print(path string, r *core.AnalysisReport) {
	heading := color.New(color.Bold)
	a := r.Assessment

	heading.Fprintf(c.out, "\n=== Receipt ===\n")
	fmt.Fprintf(c.out, "File: %s\n", path)
	fmt.Fprintf(c.out, "Receipt ID: %s\n", r.ReceiptID)
	if r.Merchant != nil {
		fmt.Fprintf(c.out, "Merchant: %s (verified: %t)\n", r.Merchant.Name, r.Merchant.Verified)
	}

	heading.Fprintf(c.out, "\n=== Verdict ===\n")
	fmt.Fprint(c.out, "Verdict: ")
	verdictColor(a.Verdict).Fprintln(c.out, strings.ToUpper(string(a.Verdict)))
	fmt.Fprintf(c.out, "Trust score: %d/100\n", a.TrustScore)
	fmt.Fprintf(c.out, "Recommendation: %s\n", a.Recommendation)

	if len(a.Issues) > 0 {
		heading.Fprintf(c.out, "\n=== Issues ===\n")
		for _, issue := range a.Issues {
			sev := severityColors[issue.Severity]
			if sev == nil {
				sev = color.New()
			}
			sev.Fprintf(c.out, "[%s] ", issue.Severity)
			fmt.Fprintf(c.out, "%s: %s\n", issue.Kind, issue.Description)
		}
	}

	fd := r.ForensicDetails
	heading.Fprintf(c.out, "\n=== Forensics ===\n")
	fmt.Fprintf(c.out, "Manipulation score: %d/100 (%s)\n", fd.ManipulationScore, fd.ForensicVerdict)
	fmt.Fprintf(c.out, "Summary: %s\n", fd.ForensicSummary)
	for _, t := range fd.TechniquesDetected {
		fmt.Fprintf(c.out, "  - %s\n", t)
	}

	if c.verbose {
		heading.Fprintf(c.out, "\n=== Stages ===\n")
		for _, l := range r.StageLogs {
			fmt.Fprintf(c.out, "%-12s %-9s %s=%.2f %v", l.Agent, l.Status, l.MetricKey, l.Metric, l.Duration.Round(time.Millisecond))
			if l.Error != "" {
				fmt.Fprintf(c.out, " error=%s", l.Error)
			}
			fmt.Fprintln(c.out)
		}
	}

	fmt.Fprintf(c.out, "\nProcessing time: %v\n", r.ProcessingTime.Round(time.Millisecond))
}

func verdictColor(v core.Verdict) *color.Color {
	if c, ok := verdictColors[v]; ok {
		return c
	}
	return color.New()
}

// Start is a no-op for the CLI intake
func (c *CLIIntake) Start() error {
	return nil
}

// Stop is a no-op for the CLI intake
func (c *CLIIntake) Stop() error {
	return nil
}
