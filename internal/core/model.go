package core

import (
	"time"
)

// Verdict is the outcome label shared by the forensic and trust synthesizers
type Verdict string

const (
	VerdictAuthentic  Verdict = "authentic"
	VerdictUnclear    Verdict = "unclear"
	VerdictSuspicious Verdict = "suspicious"
	VerdictFraudulent Verdict = "fraudulent"
)

// Severity grades an Issue
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IssueKind names the signal that produced an Issue
type IssueKind string

const (
	IssueVisualManipulation IssueKind = "visual_manipulation"
	IssueOCRFailure         IssueKind = "ocr_failure"
	IssueInsufficientData   IssueKind = "insufficient_data"
	IssueForensicFinding    IssueKind = "forensic_finding"
	IssueMetadata           IssueKind = "metadata_issue"
	IssueFraudHistory       IssueKind = "fraud_history"
	IssueAnalysisError      IssueKind = "analysis_error"
)

// Stage names, also used as the agent label on progress events
const (
	StageVision       = "vision"
	StageMetadata     = "metadata"
	StageForensic     = "forensic"
	StageReputation   = "reputation"
	StageReasoning    = "reasoning"
	StageOrchestrator = "orchestrator"
)

// ImageInput is the raw receipt handed to every image stage
type ImageInput struct {
	ReceiptID string
	Path      string
	Data      []byte
	MimeType  string
}

// VisionHints are the fields the forensic stage borrows from a successful vision stage
type VisionHints struct {
	MerchantName string
	TotalAmount  string
}

// VisionResult is the output of the OCR / vision stage
type VisionResult struct {
	OCRText         string   `json:"ocr_text"`
	Confidence      int      `json:"confidence"`
	MerchantName    *string  `json:"merchant_name,omitempty"`
	TotalAmount     *string  `json:"total_amount,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	ReceiptDate     *string  `json:"receipt_date,omitempty"`
	Items           []string `json:"items,omitempty"`
	AccountNumbers  []string `json:"account_numbers,omitempty"`
	PhoneNumbers    []string `json:"phone_numbers,omitempty"`
	VisualQuality   string   `json:"visual_quality,omitempty"`
	VisualAnomalies []string `json:"visual_anomalies"`
	Method          string   `json:"ocr_method"`
}

// Hints extracts the forensic context from a vision result; nil-safe
func (v *VisionResult) Hints() VisionHints {
	var h VisionHints
	if v == nil {
		return h
	}
	if v.MerchantName != nil {
		h.MerchantName = *v.MerchantName
	}
	if v.TotalAmount != nil {
		h.TotalAmount = *v.TotalAmount
	}
	return h
}

// MetadataResult is the output of the metadata stage
type MetadataResult struct {
	Flags     []string `json:"flags"`
	RiskScore float64  `json:"risk_score"`
	HasEXIF   bool     `json:"has_exif"`
	Software  string   `json:"software,omitempty"`
}

// MerchantInfo describes the merchant found on a receipt
type MerchantInfo struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// FraudReport is a fraud complaint filed against a bank account
type FraudReport struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	Reason     string    `json:"reason,omitempty"`
	Verified   bool      `json:"verified"`
	ReportedAt time.Time `json:"reported_at"`
}

// ReputationResult is the output of the reputation stage
type ReputationResult struct {
	TotalFraudReports int           `json:"total_fraud_reports"`
	AccountsAnalyzed  []string      `json:"accounts_analyzed"`
	Merchant          *MerchantInfo `json:"merchant,omitempty"`
}

// Point is a (row, col) position in the raster
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ClonePair is a duplicated block found by clone detection
type ClonePair struct {
	Origin     Point   `json:"origin"`
	Duplicate  Point   `json:"duplicate"`
	Similarity float64 `json:"similarity"`
}

// PixelForensicResult holds the four block-statistic detectors' outputs
type PixelForensicResult struct {
	NoiseInconsistency   bool        `json:"noise_inconsistency"`
	NoiseVariance        float64     `json:"noise_variance"`
	CompressionAnomalies bool        `json:"compression_anomalies"`
	CompressionScore     float64     `json:"compression_score"`
	CloneDetected        bool        `json:"clone_detected"`
	CloneRegions         []ClonePair `json:"clone_regions"`
	EdgeAnomalies        bool        `json:"edge_anomalies"`
	EdgeScore            float64     `json:"edge_score"`
}

// Region is one cell of the ELA analysis grid flagged as suspicious
type Region struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Severity  int     `json:"severity"`
	MeanError float64 `json:"mean_error"`
	MaxError  float64 `json:"max_error"`
}

// Hotspot is a window of concentrated pixel change in the diff map
type Hotspot struct {
	X             int     `json:"x"`
	Y             int     `json:"y"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Intensity     float64 `json:"intensity"`
	ChangedPixels int     `json:"changed_pixels"`
}

// Dimensions is a width/height pair
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DiffStatistics summarises the full resolution pixel difference
type DiffStatistics struct {
	ChangedPixels    int     `json:"changed_pixels"`
	TotalPixels      int     `json:"total_pixels"`
	ChangePercentage float64 `json:"change_percentage"`
	MaxDifference    float64 `json:"max_difference"`
	MeanDifference   float64 `json:"mean_difference"`
}

// PixelDiffMap is the downsampled, normalized difference raster
type PixelDiffMap struct {
	DiffMap    [][]uint8      `json:"diff_map"`
	Dimensions Dimensions     `json:"dimensions"`
	Statistics DiffStatistics `json:"statistics"`
	Hotspots   []Hotspot      `json:"hotspots"`
}

// ELAStatistics are the global error-map statistics
type ELAStatistics struct {
	MeanError        float64 `json:"mean_error"`
	MaxError         float64 `json:"max_error"`
	StdError         float64 `json:"std_error"`
	BrightPixelRatio float64 `json:"bright_pixel_ratio"`
}

// ELAResult is the output of error level analysis
type ELAResult struct {
	ManipulationDetected bool          `json:"manipulation_detected"`
	Techniques           []string      `json:"techniques"`
	Statistics           ELAStatistics `json:"statistics"`
	SuspiciousRegions    []Region      `json:"suspicious_regions"`
	Heatmap              [][]float64   `json:"heatmap"`
	ImageDimensions      Dimensions    `json:"image_dimensions"`
	PixelDiff            PixelDiffMap  `json:"pixel_diff"`
}

// TechnicalDetails carries everything the forensic verdict was derived from
type TechnicalDetails struct {
	Pixel           PixelForensicResult `json:"pixel_results"`
	ELA             ELAResult           `json:"ela_analysis"`
	MetadataRisk    float64             `json:"metadata_risk"`
	ImageDimensions Dimensions          `json:"image_dimensions"`
	DecodeError     string              `json:"decode_error,omitempty"`
}

// ForensicVerdict is the synthesized forensic stage output
type ForensicVerdict struct {
	ManipulationScore      int              `json:"manipulation_score"`
	Verdict                Verdict          `json:"verdict"`
	TechniquesDetected     []string         `json:"techniques_detected"`
	AuthenticityIndicators []string         `json:"authenticity_indicators"`
	Summary                string           `json:"summary"`
	TechnicalDetails       TechnicalDetails `json:"technical_details"`
}

// AggregateResult maps each stage to its output; a nil field means the stage
// failed or was skipped
type AggregateResult struct {
	Vision     *VisionResult
	Metadata   *MetadataResult
	Forensic   *ForensicVerdict
	Reputation *ReputationResult
}

// Issue is a single itemized piece of evidence in the assessment
type Issue struct {
	Kind        IssueKind `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
}

// TrustAssessment is the final bounded assessment of a receipt
type TrustAssessment struct {
	TrustScore     int     `json:"trust_score"`
	Verdict        Verdict `json:"verdict"`
	Issues         []Issue `json:"issues"`
	Recommendation string  `json:"recommendation"`
}

// StageStatus is the outcome recorded in a stage log
type StageStatus string

const (
	StatusSuccess  StageStatus = "success"
	StatusFailed   StageStatus = "failed"
	StatusSkipped  StageStatus = "skipped"
	StatusDegraded StageStatus = "degraded"
)

// StageLog is one per-stage provenance entry
type StageLog struct {
	Agent     string        `json:"agent"`
	Status    StageStatus   `json:"status"`
	MetricKey string        `json:"metric_key,omitempty"`
	Metric    float64       `json:"metric"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ProgressEvent is a single checkpoint sent to the progress sink. Details only
// hold scalar values (string, bool, int64, float64).
type ProgressEvent struct {
	ReceiptID string         `json:"receipt_id"`
	Agent     string         `json:"agent"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Progress  int            `json:"progress"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ForensicDetails is the flattened forensic payload handed to renderers
type ForensicDetails struct {
	OCRConfidence          int               `json:"ocr_confidence"`
	ManipulationScore      int               `json:"manipulation_score"`
	MetadataFlags          []string          `json:"metadata_flags"`
	ForensicVerdict        Verdict           `json:"forensic_verdict"`
	ForensicSummary        string            `json:"forensic_summary"`
	TechniquesDetected     []string          `json:"techniques_detected"`
	AuthenticityIndicators []string          `json:"authenticity_indicators"`
	ManipulationDetected   bool              `json:"manipulation_detected"`
	Heatmap                [][]float64       `json:"heatmap"`
	SuspiciousRegions      []Region          `json:"suspicious_regions"`
	ImageDimensions        *Dimensions       `json:"image_dimensions,omitempty"`
	Statistics             *ELAStatistics    `json:"statistics,omitempty"`
	PixelDiff              *PixelDiffMap     `json:"pixel_diff,omitempty"`
	TechnicalDetails       *TechnicalDetails `json:"technical_details,omitempty"`
	ForensicProgress       []ProgressEvent   `json:"forensic_progress"`
}

// AnalysisReport is what AnalyzeReceipt returns to callers
type AnalysisReport struct {
	ReceiptID       string          `json:"receipt_id"`
	Assessment      TrustAssessment `json:"assessment"`
	OCRText         string          `json:"ocr_text"`
	ForensicDetails ForensicDetails `json:"forensic_details"`
	Merchant        *MerchantInfo   `json:"merchant,omitempty"`
	StageLogs       []StageLog      `json:"agent_logs"`
	ProcessingTime  time.Duration   `json:"processing_time"`
	AnalyzedAt      time.Time       `json:"analyzed_at"`
}
