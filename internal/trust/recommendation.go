package trust

import (
	"fmt"
	"strings"

	"github.com/mikey/receipt-forensics/internal/core"
)

const (
	recommendationIssueLimit = 2
	recommendationDescLimit  = 50
	unclearManyIssues        = 3
	confidentAuthentic       = 85
)

func recommendation(v core.Verdict, score int, issues []core.Issue) string {
	var high []core.Issue
	for _, issue := range issues {
		if issue.Severity == core.SeverityHigh {
			high = append(high, issue)
		}
	}

	switch v {
	case core.VerdictFraudulent:
		summary := ""
		if len(high) > 0 {
			summary = fmt.Sprintf(" %d critical issues detected.", len(high))
		}
		return fmt.Sprintf("FRAUDULENT RECEIPT DETECTED - DO NOT TRUST.%s Report this immediately and verify through official channels.", summary)
	case core.VerdictSuspicious:
		var parts []string
		for i := 0; i < len(high) && i < recommendationIssueLimit; i++ {
			parts = append(parts, truncate(high[i].Description, recommendationDescLimit))
		}
		return fmt.Sprintf("HIGHLY SUSPICIOUS - %s. Verify independently before accepting this receipt.", strings.Join(parts, ", "))
	case core.VerdictUnclear:
		if len(issues) >= unclearManyIssues {
			return fmt.Sprintf("CANNOT VERIFY - %d issues detected including %d critical problems. Do not rely on this receipt.", len(issues), len(high))
		}
		return fmt.Sprintf("INSUFFICIENT DATA - Unable to fully verify authenticity (%d issues). Request clearer documentation.", len(issues))
	default:
		if score >= confidentAuthentic {
			return "AUTHENTIC - This receipt appears completely legitimate. All verification checks passed."
		}
		return fmt.Sprintf("LIKELY AUTHENTIC - Receipt appears genuine (score: %d/100). Minor concerns noted but overall trustworthy.", score)
	}
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
