package vision

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

const (
	defaultConfidence = 50
	defaultQuality    = "fair"
	lowTextPenalty    = 40
)

// Response is the JSON object a vision model returns
type Response struct {
	OCRText         string    `json:"ocr_text"`
	ConfidenceScore *Score    `json:"confidence_score"`
	MerchantName    *string   `json:"merchant_name"`
	TotalAmount     *Flexible `json:"total_amount"`
	Currency        *string   `json:"currency"`
	ReceiptDate     *string   `json:"receipt_date"`
	Items           []string  `json:"items"`
	AccountNumbers  []string  `json:"account_numbers"`
	PhoneNumbers    []string  `json:"phone_numbers"`
	VisualQuality   string    `json:"visual_quality"`
	VisualAnomalies []string  `json:"visual_anomalies"`
	FraudConfidence *Score    `json:"fraud_confidence"`
}

// Score accepts a JSON number or a numeric string
type Score float64

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	raw = strings.TrimSuffix(raw, "%")
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid score %s: %w", b, err)
	}
	*s = Score(v)
	return nil
}

// Flexible accepts a JSON string or number and keeps its text form
type Flexible string

// UnmarshalJSON implements json.Unmarshaler
func (f *Flexible) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = Flexible(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid value %s: %w", b, err)
	}
	*f = Flexible(n.String())
	return nil
}

// Parse decodes a model reply into a Response, stripping markdown fences and
// surrounding prose when the reply is not bare JSON
func Parse(text string, tp *utils.TextProcessor) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err == nil {
		return &resp, nil
	}

	extracted := tp.ExtractJSON(text)
	if extracted == "" {
		return nil, fmt.Errorf("no JSON object in vision response")
	}
	if err := json.Unmarshal([]byte(extracted), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}
	return &resp, nil
}

// Normalize turns a model response into a VisionResult. Confidence is
// clamped to 0..100, near-empty transcriptions are penalized, and fields the
// model left out are recovered from the OCR text with regular expressions.
func Normalize(resp *Response, method string, minTextLength int, tp *utils.TextProcessor) *core.VisionResult {
	text := tp.Normalize(resp.OCRText)

	confidence := defaultConfidence
	if resp.ConfidenceScore != nil && !math.IsNaN(float64(*resp.ConfidenceScore)) {
		confidence = clamp(int(*resp.ConfidenceScore))
	}

	anomalies := append([]string{}, resp.VisualAnomalies...)
	if n := len([]rune(text)); n < minTextLength {
		confidence = max(0, confidence-lowTextPenalty)
		anomalies = append(anomalies, fmt.Sprintf(
			"Very low text extraction (%d chars) - image may be tampered, corrupted, or illegible", n))
	}

	quality := strings.ToLower(strings.TrimSpace(resp.VisualQuality))
	if quality == "" {
		quality = defaultQuality
	}

	result := &core.VisionResult{
		OCRText:         text,
		Confidence:      confidence,
		MerchantName:    nonEmpty(deref(resp.MerchantName)),
		Currency:        nonEmpty(deref(resp.Currency)),
		ReceiptDate:     nonEmpty(deref(resp.ReceiptDate)),
		Items:           orEmpty(resp.Items),
		AccountNumbers:  orEmpty(resp.AccountNumbers),
		PhoneNumbers:    orEmpty(resp.PhoneNumbers),
		VisualQuality:   quality,
		VisualAnomalies: anomalies,
		Method:          method,
	}
	if resp.TotalAmount != nil {
		result.TotalAmount = nonEmpty(strings.ReplaceAll(string(*resp.TotalAmount), ",", ""))
	}

	fill(result, tp)
	return result
}

func fill(r *core.VisionResult, tp *utils.TextProcessor) {
	if r.MerchantName == nil {
		r.MerchantName = nonEmpty(tp.ExtractMerchant(r.OCRText))
	}
	if r.TotalAmount == nil {
		r.TotalAmount = nonEmpty(tp.ExtractAmount(r.OCRText))
	}
	if r.ReceiptDate == nil {
		r.ReceiptDate = nonEmpty(tp.ExtractDate(r.OCRText))
	}
	if len(r.AccountNumbers) == 0 {
		r.AccountNumbers = tp.ExtractAccounts(r.OCRText)
	}
	if len(r.PhoneNumbers) == 0 {
		r.PhoneNumbers = tp.ExtractPhones(r.OCRText)
	}
}

func clamp(v int) int {
	return min(100, max(0, v))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// MimeType returns the image MIME type, sniffing the bytes when unset, and
// rejects images larger than maxBytes (0 disables the limit)
func MimeType(img core.ImageInput, maxBytes int) (string, error) {
	if maxBytes > 0 && len(img.Data) > maxBytes {
		return "", fmt.Errorf("image is %d bytes, limit is %d", len(img.Data), maxBytes)
	}
	if img.MimeType != "" {
		return img.MimeType, nil
	}
	return http.DetectContentType(img.Data), nil
}
