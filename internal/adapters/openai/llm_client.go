package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/vision"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// Method is recorded as the OCR method on results from this client
const Method = "openai"

// OpenAIClient reads receipt images with an OpenAI vision model
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxImageBytes int
	minTextLength int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL uses the
// public API.
func NewOpenAIClient(
	apiKey string,
	baseURL string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxImageBytes int,
	minTextLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:        openai.NewClientWithConfig(clientCfg),
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxImageBytes: maxImageBytes,
		minTextLength: minTextLength,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Analyze implements core.VisionStage
func (c *OpenAIClient) Analyze(ctx context.Context, img core.ImageInput) (*core.VisionResult, error) {
	mimeType, err := vision.MimeType(img, c.maxImageBytes)
	if err != nil {
		return nil, err
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a receipt forensics system. Respond only with JSON.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: vision.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	c.logger.Debug("Sending receipt to OpenAI",
		zap.String("receipt_id", img.ReceiptID),
		zap.String("model", c.modelName),
		zap.String("mime_type", mimeType))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	text := resp.Choices[0].Message.Content
	parsed, err := vision.Parse(text, c.textProcessor)
	if err != nil {
		c.logger.Warn("Unparseable OpenAI response",
			zap.String("receipt_id", img.ReceiptID),
			zap.String("response", c.textProcessor.TruncateText(text, 512)))
		return nil, err
	}

	return vision.Normalize(parsed, Method, c.minTextLength, c.textProcessor), nil
}
