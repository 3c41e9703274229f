package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/receipt-forensics/")
	v.AddConfigPath("$HOME/.receipt-forensics")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Forensic detector thresholds
	v.SetDefault("forensics.noise_block_size", 32)
	v.SetDefault("forensics.noise_threshold", 15.0)
	v.SetDefault("forensics.dct_block_size", 8)
	v.SetDefault("forensics.compression_threshold", 0.35)
	v.SetDefault("forensics.clone_block_size", 16)
	v.SetDefault("forensics.clone_stride", 8)
	v.SetDefault("forensics.clone_similarity", 0.92)
	v.SetDefault("forensics.clone_max_pairs", 10)
	v.SetDefault("forensics.clone_min_variance", 0.0)
	v.SetDefault("forensics.edge_block_size", 32)
	v.SetDefault("forensics.edge_threshold", 0.20)
	v.SetDefault("forensics.ela_quality", 95)
	v.SetDefault("forensics.ela_grid", 8)
	v.SetDefault("forensics.ela_heatmap_size", 32)
	v.SetDefault("forensics.ela_std_threshold", 25.0)
	v.SetDefault("forensics.ela_max_regions", 3)
	v.SetDefault("forensics.diff_max_dimension", 512)
	v.SetDefault("forensics.hotspot_window", 32)
	v.SetDefault("forensics.hotspot_stride", 16)
	v.SetDefault("forensics.max_hotspots", 20)

	// Trust synthesis
	v.SetDefault("trust.base_score", 50.0)
	v.SetDefault("trust.min_text_length", 20)

	// OCR text processing
	v.SetDefault("text.merchant_scan_lines", 5)
	v.SetDefault("text.max_ocr_text_bytes", 64*1024)

	// Orchestration
	v.SetDefault("orchestrator.stage_timeout", "60s")
	v.SetDefault("orchestrator.forensic_timeout", "120s")
	v.SetDefault("orchestrator.progress_buffer", 32)
	v.SetDefault("orchestrator.sink_timeout", "5s")
	v.SetDefault("orchestrator.progress_close_timeout", "2s")

	// Vision provider defaults
	v.SetDefault("vision.provider", "gemini")
	v.SetDefault("vision.max_attempts", 3)
	v.SetDefault("vision.initial_backoff", "1s")
	v.SetDefault("vision.max_image_bytes", 8*1024*1024)

	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 2000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 2000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o")
	v.SetDefault("openai.max_tokens", 2000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.base_url", "")

	// Metadata stage
	v.SetDefault("metadata.editing_software", []string{"photoshop", "gimp", "paint", "canva", "picsart", "snapseed"})

	// Reputation stage
	v.SetDefault("reputation.store", "memory")
	v.SetDefault("reputation.sqlite_path", "/data/fraud_reports.db")
	v.SetDefault("reputation.mysql_dsn", "user:password@tcp(localhost:3306)/receipt_forensics")
	v.SetDefault("reputation.verified_merchants", []string{})

	// Progress sink
	v.SetDefault("progress.type", "log")
	v.SetDefault("progress.ttl", "24h")
	v.SetDefault("progress.cleanup_frequency", "1h")
	v.SetDefault("progress.sqlite_path", "/data/progress.db")
	v.SetDefault("progress.mysql_dsn", "user:password@tcp(localhost:3306)/receipt_forensics")

	// Intake
	v.SetDefault("intake.type", "http")
	v.SetDefault("intake.listen_address", "0.0.0.0:8080")
	v.SetDefault("intake.max_upload_bytes", 16*1024*1024)
	v.SetDefault("intake.smtp.listen_address", "0.0.0.0:10025")
	v.SetDefault("intake.smtp.domain", "localhost")
	v.SetDefault("intake.smtp.relay_address", "localhost:10026")
	v.SetDefault("intake.smtp.reject_fraudulent", false)
	v.SetDefault("intake.smtp.headers.score", "X-Receipt-Trust-Score")
	v.SetDefault("intake.smtp.headers.verdict", "X-Receipt-Verdict")
	v.SetDefault("intake.smtp.headers.issues", "X-Receipt-Issues")

	// CLI output
	v.SetDefault("cli.json", false)
	v.SetDefault("cli.verbose", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// durationOr parses key, falling back when the value is missing or malformed
func (c *Config) durationOr(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
