package merchant

import (
	"strings"

	"go.uber.org/zap"
)

// Verifier checks merchant names against the configured verified list
type Verifier struct {
	names  []string
	logger *zap.Logger
}

// NewVerifier creates a new merchant verifier
func NewVerifier(names []string, logger *zap.Logger) *Verifier {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		if n := normalize(name); n != "" {
			normalized = append(normalized, n)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized merchant verifier", zap.Strings("merchants", normalized))
	}

	return &Verifier{
		names:  normalized,
		logger: logger,
	}
}

// IsVerified reports whether name matches a verified merchant. A receipt
// header such as "SHOPRITE LEKKI BRANCH" matches the verified name "Shoprite".
func (v *Verifier) IsVerified(name string) bool {
	if v == nil || len(v.names) == 0 {
		return false
	}
	candidate := normalize(name)
	if candidate == "" {
		return false
	}

	padded := " " + candidate + " "
	for _, verified := range v.names {
		if candidate == verified || strings.Contains(padded, " "+verified+" ") {
			if v.logger != nil {
				v.logger.Debug("Merchant is verified",
					zap.String("merchant", name),
					zap.String("match", verified))
			}
			return true
		}
	}

	return false
}

// normalize lower-cases and collapses whitespace
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
