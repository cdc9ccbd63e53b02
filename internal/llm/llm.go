// Package llm wraps the generative-AI and embedding providers behind two small interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"

	"loancounselor-backend/internal/config"

	"github.com/rs/zerolog/log"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// ChatModel produces a completion for a single prompt.
type ChatModel interface {
	Predict(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into vectors. The i-th vector belongs to the i-th text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the chat model and embedder selected by cfg. Both talk to the same provider.
func New(ctx context.Context, cfg *config.Config) (ChatModel, Embedder, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI, config.ProviderAzure:
		if cfg.EmbeddingModel == "" {
			return nil, nil, errors.New("EMBEDDING_MODEL must be set")
		}
		client, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("model", cfg.EmbeddingModel).Msg("[LLM] Using OpenAI embeddings")
		return client, client.Embedder(cfg.EmbeddingModel), nil

	case config.ProviderBedrock:
		if cfg.BedrockEmbedder == "" {
			return nil, nil, errors.New("BEDROCK_EMBEDDING_MODEL_ID must be set")
		}
		client, err := NewBedrockClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("model", cfg.BedrockEmbedder).Msg("[LLM] Using Bedrock embeddings")
		return client, client.Embedder(cfg.BedrockEmbedder), nil
	}
	return nil, nil, fmt.Errorf("unsupported model provider %q", cfg.ModelProvider)
}
