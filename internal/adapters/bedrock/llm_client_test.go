package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

type fakeInvoker struct {
	body    []byte
	err     error
	request map[string]any
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if err := json.Unmarshal(params.Body, &f.request); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func newClient(inv ModelInvoker, model string) *BedrockClient {
	return NewBedrockClient(inv, model, 1000, 0.1, 0.9, 0, 20, zap.NewNop(), utils.NewTextProcessor(nil))
}

func TestAnalyzeClaude(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{"content":[{"type":"text","text":"Here:\n{\"ocr_text\":\"GTBANK TRANSFER\\nAmount NGN 10,000.00\\nRef 0123456789\",\"confidence_score\":81}"}]}`)}
	c := newClient(inv, "anthropic.claude-3-haiku-20240307-v1:0")

	res, err := c.Analyze(context.Background(), core.ImageInput{Data: []byte("img"), MimeType: "image/jpeg"})
	require.NoError(t, err)

	assert.Equal(t, "bedrock", res.Method)
	assert.Equal(t, 81, res.Confidence)
	assert.Equal(t, []string{"0123456789"}, res.AccountNumbers)
	assert.Equal(t, anthropicVersion, inv.request["anthropic_version"])

	msg := inv.request["messages"].([]any)[0].(map[string]any)
	src := msg["content"].([]any)[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "image/jpeg", src["media_type"])
	assert.Equal(t, "aW1n", src["data"])
}

func TestAnalyzeNova(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{"output":{"message":{"content":[{"text":"{\"ocr_text\":\"short\"}"}]}}}`)}
	c := newClient(inv, "amazon.nova-lite-v1:0")

	res, err := c.Analyze(context.Background(), core.ImageInput{Data: []byte("img"), MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Confidence)

	msg := inv.request["messages"].([]any)[0].(map[string]any)
	img := msg["content"].([]any)[0].(map[string]any)["image"].(map[string]any)
	assert.Equal(t, "png", img["format"])
}

func TestAnalyzeInvokeError(t *testing.T) {
	c := newClient(&fakeInvoker{err: errors.New("throttled")}, "anthropic.claude-3-haiku-20240307-v1:0")
	_, err := c.Analyze(context.Background(), core.ImageInput{Data: []byte("img")})
	assert.ErrorContains(t, err, "throttled")
}
