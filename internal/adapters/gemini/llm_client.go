package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/receipt-forensics/internal/adapters/vision"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// Method is recorded as the OCR method on results from this client
const Method = "gemini"

// GeminiClient reads receipt images with a Gemini multimodal model
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxImageBytes int
	minTextLength int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxImageBytes int,
	minTextLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxImageBytes: maxImageBytes,
		minTextLength: minTextLength,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Analyze implements core.VisionStage
func (c *GeminiClient) Analyze(ctx context.Context, img core.ImageInput) (*core.VisionResult, error) {
	mimeType, err := vision.MimeType(img, c.maxImageBytes)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Sending receipt to Gemini",
		zap.String("receipt_id", img.ReceiptID),
		zap.String("model", c.modelName),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(img.Data)))

	resp, err := c.model.GenerateContent(ctx,
		genai.Text(vision.Prompt),
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	parsed, err := vision.Parse(text, c.textProcessor)
	if err != nil {
		c.logger.Warn("Unparseable Gemini response",
			zap.String("receipt_id", img.ReceiptID),
			zap.String("response", c.textProcessor.TruncateText(text, 512)))
		return nil, err
	}

	return vision.Normalize(parsed, Method, c.minTextLength, c.textProcessor), nil
}

// Close releases the underlying client
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
