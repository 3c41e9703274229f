package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/adapters/intake"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/factory"
	"github.com/mikey/receipt-forensics/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Vision provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Forensic flags
	CloneMinVariance float64

	// Reputation flags
	VerifiedMerchants string

	// Input and output flags
	InputFile  string
	ReceiptID  string
	JSON       bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.Provider, "provider", "gemini", "Vision provider (gemini, openai, bedrock)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 2000, "Maximum tokens for the vision response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for vision generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for vision generation")

	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-3-haiku-20240307-v1:0", "Bedrock model ID")

	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-1.5-flash", "Gemini model name")

	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4o", "OpenAI model name")

	flag.Float64Var(&flags.CloneMinVariance, "clone-min-variance", 0, "Skip clone windows with lower luma variance (0 keeps all)")
	flag.StringVar(&flags.VerifiedMerchants, "verified-merchants", "", "Comma separated verified merchant names")

	flag.StringVar(&flags.InputFile, "file", "", "Receipt image to analyze")
	flag.StringVar(&flags.ReceiptID, "id", "", "Receipt ID (generated if empty)")
	flag.BoolVar(&flags.JSON, "json", false, "Print the report as JSON")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging and stage output")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			v := config.NewEmptyViper()
			v.SetConfigFile(flags.ConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
			cfg := config.NewFromViper(v)
			applyOutputFlags(cfg, flags)
			logger.Info("Loaded configuration from file", zap.String("file", v.ConfigFileUsed()))
			return cfg, nil
		}

		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register CLI intake
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.IntakeFactory) *intake.CLIIntake {
		return f.CreateCLIIntake()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("intake.type", "cli")
	v.Set("progress.type", "log")
	v.Set("reputation.store", "memory")
	v.Set("vision.provider", flags.Provider)
	v.Set("forensics.clone_min_variance", flags.CloneMinVariance)
	if flags.VerifiedMerchants != "" {
		v.Set("reputation.verified_merchants", splitList(flags.VerifiedMerchants))
	}

	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
	}

	cfg := config.NewFromViper(v)
	applyOutputFlags(cfg, flags)
	return cfg
}

func applyOutputFlags(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()
	v.Set("cli.json", flags.JSON)
	v.Set("cli.verbose", flags.Verbose)
}
