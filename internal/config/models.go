package config

import "time"

// ForensicsConfig holds the block sizes and thresholds of the pixel detectors and ELA
type ForensicsConfig struct {
	NoiseBlockSize       int
	NoiseThreshold       float64
	DCTBlockSize         int
	CompressionThreshold float64
	CloneBlockSize       int
	CloneStride          int
	CloneSimilarity      float64
	CloneMaxPairs        int
	// CloneMinVariance skips windows whose luma variance is at or below it.
	// Zero scans every window.
	CloneMinVariance float64
	EdgeBlockSize    int
	EdgeThreshold    float64
	ELAQuality       int
	ELAGrid          int
	ELAHeatmapSize   int
	ELAStdThreshold  float64
	ELAMaxRegions    int
	DiffMaxDimension int
	HotspotWindow    int
	HotspotStride    int
	MaxHotspots      int
}

// DefaultForensicsConfig returns the detector settings used when no config file is present
func DefaultForensicsConfig() ForensicsConfig {
	return NewFromViper(NewEmptyViper()).GetForensics()
}

// TrustConfig represents the trust synthesizer configuration
type TrustConfig struct {
	BaseScore     float64
	MinTextLength int
}

// DefaultTrustConfig returns the default trust synthesizer settings
func DefaultTrustConfig() TrustConfig {
	return NewFromViper(NewEmptyViper()).GetTrust()
}

// TextConfig bounds OCR text processing
type TextConfig struct {
	MerchantScanLines int
	MaxOCRTextBytes   int
}

// OrchestratorConfig represents the stage scheduling configuration
type OrchestratorConfig struct {
	StageTimeout    time.Duration
	ForensicTimeout time.Duration
	ProgressBuffer  int

	// SinkTimeout bounds a single progress sink call
	SinkTimeout time.Duration

	// ProgressCloseTimeout bounds how long a finished analysis waits for queued
	// progress events; anything still queued afterwards is dropped
	ProgressCloseTimeout time.Duration
}

// VisionConfig represents the vision provider selection and retry policy
type VisionConfig struct {
	Provider       string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxImageBytes  int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// MetadataConfig represents the EXIF stage configuration
type MetadataConfig struct {
	EditingSoftware []string
}

// ReputationConfig represents the reputation stage configuration
type ReputationConfig struct {
	Store             string
	SQLitePath        string
	MySQLDSN          string
	VerifiedMerchants []string
}

// ProgressConfig represents the progress sink configuration
type ProgressConfig struct {
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// SMTPHeaders are the header names the mail gateway stamps on relayed messages
type SMTPHeaders struct {
	Score   string
	Verdict string
	Issues  string
}

// SMTPIntakeConfig represents the mail gateway configuration
type SMTPIntakeConfig struct {
	ListenAddress    string
	Domain           string
	RelayAddress     string
	RejectFraudulent bool
	Headers          SMTPHeaders
}

// IntakeConfig represents the receipt intake configuration
type IntakeConfig struct {
	Type           string
	ListenAddress  string
	MaxUploadBytes int64
	SMTP           SMTPIntakeConfig
}

// GetForensics returns the forensic detector configuration
func (c *Config) GetForensics() ForensicsConfig {
	return ForensicsConfig{
		NoiseBlockSize:       c.GetInt("forensics.noise_block_size"),
		NoiseThreshold:       c.GetFloat64("forensics.noise_threshold"),
		DCTBlockSize:         c.GetInt("forensics.dct_block_size"),
		CompressionThreshold: c.GetFloat64("forensics.compression_threshold"),
		CloneBlockSize:       c.GetInt("forensics.clone_block_size"),
		CloneStride:          c.GetInt("forensics.clone_stride"),
		CloneSimilarity:      c.GetFloat64("forensics.clone_similarity"),
		CloneMaxPairs:        c.GetInt("forensics.clone_max_pairs"),
		CloneMinVariance:     c.GetFloat64("forensics.clone_min_variance"),
		EdgeBlockSize:        c.GetInt("forensics.edge_block_size"),
		EdgeThreshold:        c.GetFloat64("forensics.edge_threshold"),
		ELAQuality:           c.GetInt("forensics.ela_quality"),
		ELAGrid:              c.GetInt("forensics.ela_grid"),
		ELAHeatmapSize:       c.GetInt("forensics.ela_heatmap_size"),
		ELAStdThreshold:      c.GetFloat64("forensics.ela_std_threshold"),
		ELAMaxRegions:        c.GetInt("forensics.ela_max_regions"),
		DiffMaxDimension:     c.GetInt("forensics.diff_max_dimension"),
		HotspotWindow:        c.GetInt("forensics.hotspot_window"),
		HotspotStride:        c.GetInt("forensics.hotspot_stride"),
		MaxHotspots:          c.GetInt("forensics.max_hotspots"),
	}
}

// GetTrust returns the trust synthesizer configuration
func (c *Config) GetTrust() TrustConfig {
	return TrustConfig{
		BaseScore:     c.GetFloat64("trust.base_score"),
		MinTextLength: c.GetInt("trust.min_text_length"),
	}
}

// GetOrchestrator returns the orchestration configuration
func (c *Config) GetOrchestrator() OrchestratorConfig {
	return OrchestratorConfig{
		StageTimeout:         c.durationOr("orchestrator.stage_timeout", 60*time.Second),
		ForensicTimeout:      c.durationOr("orchestrator.forensic_timeout", 120*time.Second),
		ProgressBuffer:       c.GetInt("orchestrator.progress_buffer"),
		SinkTimeout:          c.durationOr("orchestrator.sink_timeout", 5*time.Second),
		ProgressCloseTimeout: c.durationOr("orchestrator.progress_close_timeout", 2*time.Second),
	}
}

// GetText returns the OCR text processing limits
func (c *Config) GetText() TextConfig {
	return TextConfig{
		MerchantScanLines: c.GetInt("text.merchant_scan_lines"),
		MaxOCRTextBytes:   c.GetInt("text.max_ocr_text_bytes"),
	}
}

// GetVision returns the vision provider configuration
func (c *Config) GetVision() VisionConfig {
	return VisionConfig{
		Provider:       c.GetString("vision.provider"),
		MaxAttempts:    c.GetInt("vision.max_attempts"),
		InitialBackoff: c.durationOr("vision.initial_backoff", time.Second),
		MaxImageBytes:  c.GetInt("vision.max_image_bytes"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		BaseURL:     c.GetString("openai.base_url"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetMetadata returns the metadata stage configuration
func (c *Config) GetMetadata() MetadataConfig {
	return MetadataConfig{
		EditingSoftware: c.GetStringSlice("metadata.editing_software"),
	}
}

// GetReputation returns the reputation stage configuration
func (c *Config) GetReputation() ReputationConfig {
	return ReputationConfig{
		Store:             c.GetString("reputation.store"),
		SQLitePath:        c.GetString("reputation.sqlite_path"),
		MySQLDSN:          c.GetString("reputation.mysql_dsn"),
		VerifiedMerchants: c.GetStringSlice("reputation.verified_merchants"),
	}
}

// GetProgress returns the progress sink configuration
func (c *Config) GetProgress() ProgressConfig {
	return ProgressConfig{
		Type:             c.GetString("progress.type"),
		TTL:              c.durationOr("progress.ttl", 24*time.Hour),
		CleanupFrequency: c.durationOr("progress.cleanup_frequency", time.Hour),
		SQLitePath:       c.GetString("progress.sqlite_path"),
		MySQLDSN:         c.GetString("progress.mysql_dsn"),
	}
}

// GetIntake returns the intake configuration
func (c *Config) GetIntake() IntakeConfig {
	return IntakeConfig{
		Type:           c.GetString("intake.type"),
		ListenAddress:  c.GetString("intake.listen_address"),
		MaxUploadBytes: c.v.GetInt64("intake.max_upload_bytes"),
		SMTP: SMTPIntakeConfig{
			ListenAddress:    c.GetString("intake.smtp.listen_address"),
			Domain:           c.GetString("intake.smtp.domain"),
			RelayAddress:     c.GetString("intake.smtp.relay_address"),
			RejectFraudulent: c.GetBool("intake.smtp.reject_fraudulent"),
			Headers: SMTPHeaders{
				Score:   c.GetString("intake.smtp.headers.score"),
				Verdict: c.GetString("intake.smtp.headers.verdict"),
				Issues:  c.GetString("intake.smtp.headers.issues"),
			},
		},
	}
}
