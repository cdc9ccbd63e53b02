package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Supported values for the provider/backend/source switches.
const (
	ProviderOpenAI  = "openai"
	ProviderAzure   = "azure"
	ProviderBedrock = "bedrock"

	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"

	LenderSourceStatic = "static"
	LenderSourceFile   = "file"
	LenderSourceNotion = "notion"
)

// ErrInvalidConfig is wrapped by every validation failure returned from LoadConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	ModelProvider   string  `mapstructure:"MODEL_PROVIDER"`
	OpenAIAPIKey    string  `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel     string  `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL   string  `mapstructure:"OPENAI_BASE_URL"`
	AzureEndpoint   string  `mapstructure:"AZURE_OPENAI_ENDPOINT"`
	EmbeddingModel  string  `mapstructure:"EMBEDDING_MODEL"`
	Temperature     float32 `mapstructure:"MODEL_TEMPERATURE"`
	AWSRegion       string  `mapstructure:"AWS_REGION"`
	BedrockModelID  string  `mapstructure:"BEDROCK_MODEL_ID"`
	BedrockEmbedder string  `mapstructure:"BEDROCK_EMBEDDING_MODEL_ID"`

	StoreBackend       string `mapstructure:"STORE_BACKEND"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	FirestoreProjectID string `mapstructure:"FIRESTORE_PROJECT_ID"`
	EncryptionKeyHex   string `mapstructure:"ENCRYPTION_KEY"`

	LenderSource           string `mapstructure:"LENDER_SOURCE"`
	LendersFile            string `mapstructure:"LENDERS_FILE"`
	NotionToken            string `mapstructure:"NOTION_TOKEN"`
	NotionLenderDatabaseID string `mapstructure:"NOTION_LENDER_DATABASE_ID"`

	SlackBotToken  string `mapstructure:"SLACK_BOT_TOKEN"`
	SlackChannelID string `mapstructure:"SLACK_CHANNEL_ID"`

	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	ContextTopK           int    `mapstructure:"CONTEXT_TOP_K"`
	CORSAllowedOrigins    string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	TracingEnabled        bool   `mapstructure:"TRACING_ENABLED"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	LogFormat             string `mapstructure:"LOG_FORMAT"`

	// Derived values, filled in after validation.
	RequestTimeout time.Duration `mapstructure:"-"`
	EncryptionKey  []byte        `mapstructure:"-"` // Raw key bytes (32 for AES-256), nil when unset
}

var defaults = map[string]any{
	"HTTP_PORT":                  "8000",
	"MODEL_PROVIDER":             ProviderOpenAI,
	"OPENAI_API_KEY":             "",
	"OPENAI_MODEL":               "",
	"OPENAI_BASE_URL":            "https://api.openai.com/v1",
	"AZURE_OPENAI_ENDPOINT":      "",
	"EMBEDDING_MODEL":            "text-embedding-3-small",
	"MODEL_TEMPERATURE":          0.6,
	"AWS_REGION":                 "us-east-1",
	"BEDROCK_MODEL_ID":           "anthropic.claude-3-haiku-20240307-v1:0",
	"BEDROCK_EMBEDDING_MODEL_ID": "amazon.titan-embed-text-v2:0",
	"STORE_BACKEND":              BackendMemory,
	"DATABASE_URL":               "",
	"FIRESTORE_PROJECT_ID":       "",
	"ENCRYPTION_KEY":             "",
	"LENDER_SOURCE":              LenderSourceStatic,
	"LENDERS_FILE":               "",
	"NOTION_TOKEN":               "",
	"NOTION_LENDER_DATABASE_ID":  "",
	"SLACK_BOT_TOKEN":            "",
	"SLACK_CHANNEL_ID":           "",
	"REQUEST_TIMEOUT_SECONDS":    30,
	"CONTEXT_TOP_K":              3,
	"CORS_ALLOWED_ORIGINS":       "*",
	"TRACING_ENABLED":            false,
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "console",
}

// LoadConfig loads configuration from environment variables.
// It looks for .env files first (the given paths, or ./.env), then checks actual environment variables.
func LoadConfig(envFiles ...string) (*Config, error) {
	return load(true, envFiles)
}

// LoadIntegrationConfig is LoadConfig without the model provider checks, for commands
// that only touch the lender sources and notifiers.
func LoadIntegrationConfig(envFiles ...string) (*Config, error) {
	return load(false, envFiles)
}

func load(requireModel bool, envFiles []string) (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug().Err(err).Msg("Could not load .env file. Using environment variables only.")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.validate(requireModel); err != nil {
		return nil, err
	}

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("provider", cfg.ModelProvider).
		Str("store", cfg.StoreBackend).
		Str("lenders", cfg.LenderSource).
		Dur("request_timeout", cfg.RequestTimeout).
		Bool("encryption", cfg.EncryptionKey != nil).
		Msg("Loaded config")

	return cfg, nil
}

func (c *Config) validate(requireModel bool) error {
	c.ModelProvider = strings.ToLower(strings.TrimSpace(c.ModelProvider))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.LenderSource = strings.ToLower(strings.TrimSpace(c.LenderSource))

	if requireModel {
		if err := c.validateModel(); err != nil {
			return err
		}
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL must be set for the postgres store", ErrInvalidConfig)
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("%w: FIRESTORE_PROJECT_ID must be set for the firestore store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.StoreBackend)
	}

	switch c.LenderSource {
	case LenderSourceStatic:
	case LenderSourceFile:
		if c.LendersFile == "" {
			return fmt.Errorf("%w: LENDERS_FILE must be set for the file lender source", ErrInvalidConfig)
		}
	case LenderSourceNotion:
		if c.NotionToken == "" || c.NotionLenderDatabaseID == "" {
			return fmt.Errorf("%w: NOTION_TOKEN and NOTION_LENDER_DATABASE_ID must be set for the notion lender source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown LENDER_SOURCE %q", ErrInvalidConfig, c.LenderSource)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: MODEL_TEMPERATURE must be between 0 and 2, got %v", ErrInvalidConfig, c.Temperature)
	}

	if c.RequestTimeoutSeconds <= 0 {
		log.Warn().Int("value", c.RequestTimeoutSeconds).Msg("Invalid REQUEST_TIMEOUT_SECONDS, using default 30s")
		c.RequestTimeoutSeconds = 30
	}
	c.RequestTimeout = time.Duration(c.RequestTimeoutSeconds) * time.Second

	if c.ContextTopK <= 0 {
		c.ContextTopK = 3
	}

	// The key is optional; when present it MUST be 64 hex characters for 32 bytes.
	if c.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(c.EncryptionKeyHex)
		if err != nil {
			return fmt.Errorf("%w: failed to decode ENCRYPTION_KEY from hex: %v", ErrInvalidConfig, err)
		}
		if len(key) != 32 {
			return fmt.Errorf("%w: ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", ErrInvalidConfig, len(key))
		}
		c.EncryptionKey = key
	}

	return nil
}

func (c *Config) validateModel() error {
	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAIModel == "" || c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_MODEL and OPENAI_API_KEY must be provided", ErrInvalidConfig)
		}
	case ProviderAzure:
		if c.OpenAIModel == "" || c.OpenAIAPIKey == "" || c.AzureEndpoint == "" {
			return fmt.Errorf("%w: OPENAI_MODEL, OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT must be provided", ErrInvalidConfig)
		}
	case ProviderBedrock:
		if c.BedrockModelID == "" || c.AWSRegion == "" {
			return fmt.Errorf("%w: BEDROCK_MODEL_ID and AWS_REGION must be provided", ErrInvalidConfig)
		}
		if c.BedrockEmbedder == "" {
			return fmt.Errorf("%w: BEDROCK_EMBEDDING_MODEL_ID must be provided", ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown MODEL_PROVIDER %q", ErrInvalidConfig, c.ModelProvider)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL must be provided", ErrInvalidConfig)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// SlackEnabled reports whether counselor digests should be posted to Slack.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}
