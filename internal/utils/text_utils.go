package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var (
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:₦|NGN|N)\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`),
		regexp.MustCompile(`(?i)(?:AMOUNT|TOTAL|PAID)[\s:]+(?:₦|NGN|N)?\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
		regexp.MustCompile(`\d{2}-\d{2}-\d{4}`),
	}
	accountPattern = regexp.MustCompile(`\b\d{10}\b`)
	phonePattern   = regexp.MustCompile(`(?:\+234|\b0)\d{10}\b`)
	fencePattern   = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")
)

// DefaultMerchantScanLines is how many leading lines may hold the merchant name
const DefaultMerchantScanLines = 5

// TextProcessor normalizes OCR text and pulls structured fields out of it
type TextProcessor struct {
	logger        *zap.Logger
	merchantLines int
	maxTextBytes  int
}

// NewTextProcessor creates a new TextProcessor with the default limits
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger:        logger,
		merchantLines: DefaultMerchantScanLines,
	}
}

// WithLimits sets how many leading lines are searched for the merchant name and
// the byte cap applied by Normalize. Non-positive merchantLines keeps the
// default; non-positive maxTextBytes disables the cap.
func (tp *TextProcessor) WithLimits(merchantLines, maxTextBytes int) *TextProcessor {
	if merchantLines > 0 {
		tp.merchantLines = merchantLines
	}
	tp.maxTextBytes = maxTextBytes
	return tp
}

// TruncateText safely truncates text to maxSize bytes, keeping valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated
}

// SanitizeUTF8 drops invalid UTF-8 bytes
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// Normalize sanitizes, applies NFKC, trims and caps OCR text. NFKC folds the
// full-width digits and ligatures some OCR engines emit.
func (tp *TextProcessor) Normalize(text string) string {
	return tp.TruncateText(strings.TrimSpace(norm.NFKC.String(tp.SanitizeUTF8(text))), tp.maxTextBytes)
}

// ExtractMerchant returns the first all-caps line longer than three runes in
// the first few lines
func (tp *TextProcessor) ExtractMerchant(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > tp.merchantLines {
		lines = lines[:tp.merchantLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > 3 && isUpper(line) {
			return line
		}
	}
	return ""
}

// isUpper reports whether s has at least one cased rune and no lower case ones
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// ExtractAmount returns the first currency amount with thousands separators removed
func (tp *TextProcessor) ExtractAmount(text string) string {
	for _, p := range amountPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.ReplaceAll(m[1], ",", "")
		}
	}
	return ""
}

// ExtractDate returns the first date in ISO, d/m/Y or d-m-Y form
func (tp *TextProcessor) ExtractDate(text string) string {
	for _, p := range datePatterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// ExtractAccounts returns every standalone 10-digit number
func (tp *TextProcessor) ExtractAccounts(text string) []string {
	return uniq(accountPattern.FindAllString(text, -1))
}

// ExtractPhones returns +234 or 0-prefixed 11/13 digit phone numbers
func (tp *TextProcessor) ExtractPhones(text string) []string {
	return uniq(phonePattern.FindAllString(text, -1))
}

// ExtractJSON strips markdown fences and returns the outermost {...} span, or
// "" when the text holds no object
func (tp *TextProcessor) ExtractJSON(text string) string {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(strings.TrimSpace(text), ""))
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}

func uniq(in []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
