package llm

import (
	"context"
	"fmt"
	"strings"

	"loancounselor-backend/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// openAIAPI is the subset of *azopenai.Client used here.
type openAIAPI interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
	GetEmbeddings(ctx context.Context, body azopenai.EmbeddingsOptions, options *azopenai.GetEmbeddingsOptions) (azopenai.GetEmbeddingsResponse, error)
}

// OpenAIClient talks to OpenAI or an Azure OpenAI deployment.
type OpenAIClient struct {
	api         openAIAPI
	model       string
	temperature float32
}

// NewOpenAIClient creates a client for the public OpenAI endpoint or, when the provider is
// azure, for the configured Azure OpenAI resource.
func NewOpenAIClient(cfg *config.Config) (*OpenAIClient, error) {
	if cfg.OpenAIModel == "" || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("model and API key must be provided")
	}
	keyCredential := azcore.NewKeyCredential(cfg.OpenAIAPIKey)

	var (
		client *azopenai.Client
		err    error
	)
	if cfg.ModelProvider == config.ProviderAzure {
		client, err = azopenai.NewClientWithKeyCredential(cfg.AzureEndpoint, keyCredential, nil)
	} else {
		client, err = azopenai.NewClientForOpenAI(cfg.OpenAIBaseURL, keyCredential, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &OpenAIClient{api: client, model: cfg.OpenAIModel, temperature: cfg.Temperature}, nil
}

// Predict sends prompt as a single user message and returns the first choice.
func (c *OpenAIClient) Predict(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		Messages: []azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestUserMessage{Content: azopenai.NewChatRequestUserMessageContent(prompt)},
		},
		DeploymentName: to.Ptr(c.model),
		Temperature:    to.Ptr(c.temperature),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("chat completion with %s failed: %w", c.model, err)
	}

	for _, choice := range resp.Choices {
		if choice.Message != nil && choice.Message.Content != nil {
			if text := strings.TrimSpace(*choice.Message.Content); text != "" {
				return text, nil
			}
		}
	}
	return "", ErrEmptyCompletion
}

// Embedder returns an Embedder backed by the given embedding model or deployment.
func (c *OpenAIClient) Embedder(model string) Embedder {
	return &openAIEmbedder{api: c.api, model: model}
}

type openAIEmbedder struct {
	api   openAIAPI
	model string
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.api.GetEmbeddings(ctx, azopenai.EmbeddingsOptions{
		Input:          texts,
		DeploymentName: to.Ptr(e.model),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s failed: %w", e.model, err)
	}

	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := i
		if item.Index != nil {
			idx = int(*item.Index)
		}
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", idx)
		}
		out[idx] = item.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
	}
	return out, nil
}
