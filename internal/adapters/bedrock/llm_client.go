package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/vision"
	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

// Method is recorded as the OCR method on results from this client
const Method = "bedrock"

const anthropicVersion = "bedrock-2023-05-31"

// ModelInvoker is the subset of the Bedrock runtime client this adapter uses
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient reads receipt images with a multimodal model on Amazon Bedrock
type BedrockClient struct {
	client        ModelInvoker
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxImageBytes int
	minTextLength int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client ModelInvoker,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxImageBytes int,
	minTextLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
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
func (c *BedrockClient) Analyze(ctx context.Context, img core.ImageInput) (*core.VisionResult, error) {
	mimeType, err := vision.MimeType(img, c.maxImageBytes)
	if err != nil {
		return nil, err
	}

	payload, err := c.payload(mimeType, base64.StdEncoding.EncodeToString(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	c.logger.Debug("Sending receipt to Bedrock",
		zap.String("receipt_id", img.ReceiptID),
		zap.String("model", c.modelID),
		zap.String("mime_type", mimeType))

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	parsed, err := vision.Parse(text, c.textProcessor)
	if err != nil {
		c.logger.Warn("Unparseable Bedrock response",
			zap.String("receipt_id", img.ReceiptID),
			zap.String("response", c.textProcessor.TruncateText(text, 512)))
		return nil, err
	}

	return vision.Normalize(parsed, Method, c.minTextLength, c.textProcessor), nil
}

func (c *BedrockClient) payload(mimeType, encoded string) ([]byte, error) {
	if c.isNovaModel() {
		return json.Marshal(map[string]any{
			"messages": []any{map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"image": map[string]any{
						"format": strings.TrimPrefix(mimeType, "image/"),
						"source": map[string]any{"bytes": encoded},
					}},
					map[string]any{"text": vision.Prompt},
				},
			}},
			"inferenceConfig": map[string]any{
				"maxTokens":   c.maxTokens,
				"temperature": c.temperature,
				"topP":        c.topP,
			},
		})
	}

	return json.Marshal(map[string]any{
		"anthropic_version": anthropicVersion,
		"max_tokens":        c.maxTokens,
		"temperature":       c.temperature,
		"top_p":             c.topP,
		"messages": []any{map[string]any{
			"role": "user",
			"content": []any{
				map[string]any{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": mimeType,
						"data":       encoded,
					},
				},
				map[string]any{"type": "text", "text": vision.Prompt},
			},
		}},
	})
}

func (c *BedrockClient) responseText(body []byte) (string, error) {
	if c.isNovaModel() {
		var novaResp struct {
			Output struct {
				Message struct {
					Content []struct {
						Text string `json:"text"`
					} `json:"content"`
				} `json:"message"`
			} `json:"output"`
		}
		if err := json.Unmarshal(body, &novaResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Nova response: %w", err)
		}
		var b strings.Builder
		for _, part := range novaResp.Output.Message.Content {
			b.WriteString(part.Text)
		}
		return b.String(), nil
	}

	var claudeResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
	}
	var b strings.Builder
	for _, part := range claudeResp.Content {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// isNovaModel checks if the model is an Amazon Nova model; everything else
// is sent the Anthropic messages format
func (c *BedrockClient) isNovaModel() bool {
	return strings.Contains(c.modelID, "amazon.nova")
}
