package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, ProviderOpenAI, cfg.ModelProvider)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, LenderSourceStatic, cfg.LenderSource)
	assert.InDelta(t, 0.6, cfg.Temperature, 1e-6)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "amazon.titan-embed-text-v2:0", cfg.BedrockEmbedder)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.ContextTopK)
	assert.Nil(t, cfg.EncryptionKey)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
	assert.False(t, cfg.SlackEnabled())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	setBaseEnv(t)
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"HTTP_PORT=9090",
		"MODEL_TEMPERATURE=0.2",
		"REQUEST_TIMEOUT_SECONDS=5",
		"CORS_ALLOWED_ORIGINS=http://localhost:3000, https://app.example.com",
		"ENCRYPTION_KEY=" + strings.Repeat("ab", 32),
		"TRACING_ENABLED=true",
	}, "\n")
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	for _, k := range []string{"HTTP_PORT", "MODEL_TEMPERATURE", "REQUEST_TIMEOUT_SECONDS", "CORS_ALLOWED_ORIGINS", "ENCRYPTION_KEY", "TRACING_ENABLED"} {
		k := k
		prev, had := os.LookupEnv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-6)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.AllowedOrigins())
	assert.Len(t, cfg.EncryptionKey, 32)
	assert.True(t, cfg.TracingEnabled)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing openai key", map[string]string{"OPENAI_API_KEY": "", "OPENAI_MODEL": "gpt"}, "OPENAI_MODEL and OPENAI_API_KEY"},
		{"azure without endpoint", map[string]string{"MODEL_PROVIDER": "azure"}, "AZURE_OPENAI_ENDPOINT"},
		{"unknown provider", map[string]string{"MODEL_PROVIDER": "llama"}, "unknown MODEL_PROVIDER"},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"firestore without project", map[string]string{"STORE_BACKEND": "firestore"}, "FIRESTORE_PROJECT_ID"},
		{"file source without path", map[string]string{"LENDER_SOURCE": "file"}, "LENDERS_FILE"},
		{"notion without token", map[string]string{"LENDER_SOURCE": "notion"}, "NOTION_TOKEN"},
		{"short key", map[string]string{"ENCRYPTION_KEY": "abcd"}, "32 bytes"},
		{"bad hex key", map[string]string{"ENCRYPTION_KEY": "zz"}, "decode ENCRYPTION_KEY"},
		{"temperature range", map[string]string{"MODEL_TEMPERATURE": "3"}, "MODEL_TEMPERATURE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigBedrockNeedsNoOpenAIKey(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "Bedrock")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ProviderBedrock, cfg.ModelProvider)
	assert.NotEmpty(t, cfg.BedrockModelID)
}

func TestValidateModelRequiresEmbeddingModel(t *testing.T) {
	openai := &Config{ModelProvider: ProviderOpenAI, OpenAIModel: "gpt-4o-mini", OpenAIAPIKey: "sk-test"}
	err := openai.validateModel()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "EMBEDDING_MODEL")

	openai.EmbeddingModel = "text-embedding-3-small"
	assert.NoError(t, openai.validateModel())

	bedrock := &Config{ModelProvider: ProviderBedrock, BedrockModelID: "anthropic.claude", AWSRegion: "us-east-1"}
	err = bedrock.validateModel()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEDROCK_EMBEDDING_MODEL_ID")
}

func TestLoadIntegrationConfigSkipsModelCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL_ID", "C123")
	missing := filepath.Join(t.TempDir(), "missing.env")

	_, err := LoadConfig(missing)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := LoadIntegrationConfig(missing)
	require.NoError(t, err)
	assert.True(t, cfg.SlackEnabled())

	t.Setenv("STORE_BACKEND", "postgres")
	_, err = LoadIntegrationConfig(missing)
	assert.ErrorContains(t, err, "DATABASE_URL")
}
