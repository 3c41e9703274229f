package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	f := cfg.GetForensics()
	assert.Equal(t, 32, f.NoiseBlockSize)
	assert.Equal(t, 0.35, f.CompressionThreshold)
	assert.Equal(t, 0.92, f.CloneSimilarity)
	assert.Equal(t, 10, f.CloneMaxPairs)
	assert.Zero(t, f.CloneMinVariance)
	assert.Equal(t, 95, f.ELAQuality)

	assert.Equal(t, 60*time.Second, cfg.GetOrchestrator().StageTimeout)
	assert.Equal(t, 120*time.Second, cfg.GetOrchestrator().ForensicTimeout)
	assert.Equal(t, 5*time.Second, cfg.GetOrchestrator().SinkTimeout)
	assert.Equal(t, 2*time.Second, cfg.GetOrchestrator().ProgressCloseTimeout)
	assert.Equal(t, 5, cfg.GetText().MerchantScanLines)
	assert.Equal(t, 20, cfg.GetTrust().MinTextLength)
	assert.Equal(t, "gemini", cfg.GetVision().Provider)
	assert.Equal(t, 3, cfg.GetVision().MaxAttempts)
	assert.Contains(t, cfg.GetMetadata().EditingSoftware, "photoshop")
	assert.Equal(t, "X-Receipt-Verdict", cfg.GetIntake().SMTP.Headers.Verdict)
	assert.Equal(t, int64(16*1024*1024), cfg.GetIntake().MaxUploadBytes)
}

func TestMalformedDurationFallsBack(t *testing.T) {
	v := NewEmptyViper()
	v.Set("orchestrator.stage_timeout", "soon")
	v.Set("progress.ttl", "-5m")
	cfg := NewFromViper(v)

	assert.Equal(t, 60*time.Second, cfg.GetOrchestrator().StageTimeout)
	assert.Equal(t, 24*time.Hour, cfg.GetProgress().TTL)

	_, err := cfg.GetDuration("orchestrator.stage_timeout")
	assert.Error(t, err)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vision:
  provider: bedrock
reputation:
  store: sqlite
  verified_merchants: [Shoprite, OPay]
intake:
  smtp:
    reject_fraudulent: true
`), 0o600))

	v := NewEmptyViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg := NewFromViper(v)

	assert.Equal(t, "bedrock", cfg.GetVision().Provider)
	assert.Equal(t, "sqlite", cfg.GetReputation().Store)
	assert.Equal(t, []string{"Shoprite", "OPay"}, cfg.GetReputation().VerifiedMerchants)
	assert.True(t, cfg.GetIntake().SMTP.RejectFraudulent)
	assert.Equal(t, "us-east-1", cfg.GetBedrock().Region)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("RECEIPT_VISION_PROVIDER", "openai")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.GetVision().Provider)
}
