package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/utils"
)

func newTestServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestAnalyze(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, `{"ocr_text":"SHOPRITE LEKKI\nTOTAL: 4,500.00\n2024-01-02","confidence_score":88,"visual_quality":"good"}`, &seen)
	defer srv.Close()

	c := NewOpenAIClient("test", srv.URL+"/v1", "gpt-4o", 500, 0.1, 0.9, 0, 20, zap.NewNop(), utils.NewTextProcessor(nil))
	res, err := c.Analyze(context.Background(), core.ImageInput{ReceiptID: "r1", Data: []byte("\x89PNG\r\n\x1a\nxxxx"), MimeType: "image/png"})
	require.NoError(t, err)

	assert.Equal(t, "openai", res.Method)
	assert.Equal(t, 88, res.Confidence)
	require.NotNil(t, res.MerchantName)
	assert.Equal(t, "SHOPRITE LEKKI", *res.MerchantName)
	require.NotNil(t, res.TotalAmount)
	assert.Equal(t, "4500.00", *res.TotalAmount)

	msgs := seen["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(img["url"].(string), "data:image/png;base64,"))
}

func TestAnalyzeRejectsGarbage(t *testing.T) {
	srv := newTestServer(t, "I am unable to help with that.", nil)
	defer srv.Close()

	c := NewOpenAIClient("test", srv.URL+"/v1", "gpt-4o", 500, 0.1, 0.9, 0, 20, zap.NewNop(), utils.NewTextProcessor(nil))
	_, err := c.Analyze(context.Background(), core.ImageInput{Data: []byte("x"), MimeType: "image/jpeg"})
	assert.Error(t, err)
}

func TestAnalyzeRejectsOversizedImage(t *testing.T) {
	c := NewOpenAIClient("test", "http://127.0.0.1:1/v1", "gpt-4o", 500, 0.1, 0.9, 4, 20, zap.NewNop(), utils.NewTextProcessor(nil))
	_, err := c.Analyze(context.Background(), core.ImageInput{Data: []byte("12345")})
	assert.ErrorContains(t, err, "limit is 4")
}
