package metadata

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

const (
	editedRisk   = 30.0
	strippedRisk = 20.0
	modifiedRisk = 10.0
	maxRisk      = 100.0
)

// Stage inspects EXIF metadata for signs of editing
type Stage struct {
	editors []string
	logger  *zap.Logger
}

// NewStage creates a metadata stage that flags the given editor keywords
func NewStage(editors []string, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	keywords := make([]string, 0, len(editors))
	for _, e := range editors {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			keywords = append(keywords, e)
		}
	}
	return &Stage{editors: keywords, logger: logger}
}

// Analyze implements core.MetadataStage. Missing or unreadable EXIF is a
// finding, not an error.
func (s *Stage) Analyze(ctx context.Context, img core.ImageInput) (*core.MetadataResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &core.MetadataResult{Flags: []string{}}

	x, err := exif.Decode(bytes.NewReader(img.Data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		s.logger.Debug("No EXIF metadata",
			zap.String("receipt_id", img.ReceiptID),
			zap.Error(err))
		result.Flags = append(result.Flags, "No EXIF metadata (may be stripped)")
		result.RiskScore = strippedRisk
		return result, nil
	}
	result.HasEXIF = true

	if software := stringTag(x, exif.Software); software != "" {
		result.Software = software
		if s.isEditor(software) {
			result.Flags = append(result.Flags, fmt.Sprintf("Edited with %s", software))
			result.RiskScore += editedRisk
		}
	}

	modified := stringTag(x, exif.DateTime)
	original := stringTag(x, exif.DateTimeOriginal)
	if modified != "" && original != "" && modified != original {
		result.Flags = append(result.Flags, "Modified after capture")
		result.RiskScore += modifiedRisk
	}

	result.RiskScore = min(result.RiskScore, maxRisk)

	s.logger.Debug("Metadata check complete",
		zap.String("receipt_id", img.ReceiptID),
		zap.Int("flags", len(result.Flags)),
		zap.Float64("risk_score", result.RiskScore))

	return result, nil
}

func (s *Stage) isEditor(software string) bool {
	lower := strings.ToLower(software)
	for _, e := range s.editors {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	v, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}
