package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"loancounselor-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	anthropicBedrockVersion = "bedrock-2023-05-31"
	bedrockMaxTokens        = 1024
)

// bedrockAPI is the subset of *bedrockruntime.Client used here.
type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient calls Anthropic models hosted on AWS Bedrock.
type BedrockClient struct {
	api         bedrockAPI
	modelID     string
	temperature float32
}

// NewBedrockClient loads the default AWS credential chain for the configured region.
func NewBedrockClient(ctx context.Context, cfg *config.Config) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &BedrockClient{
		api:         bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.BedrockModelID,
		temperature: cfg.Temperature,
	}, nil
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

func buildAnthropicRequest(prompt string, temperature float32) ([]byte, error) {
	return json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        bedrockMaxTokens,
		Temperature:      temperature,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicContent{{Type: "text", Text: prompt}},
		}},
	})
}

func parseAnthropicResponse(body []byte) (string, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode bedrock response: %w", err)
	}
	var parts []string
	for _, c := range resp.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Predict sends prompt as a single user turn.
func (c *BedrockClient) Predict(ctx context.Context, prompt string) (string, error) {
	body, err := buildAnthropicRequest(prompt, c.temperature)
	if err != nil {
		return "", fmt.Errorf("failed to encode bedrock request: %w", err)
	}
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke %s failed: %w", c.modelID, err)
	}
	return parseAnthropicResponse(out.Body)
}

// Embedder returns a Titan text embedder using the same runtime client.
func (c *BedrockClient) Embedder(modelID string) Embedder {
	return &titanEmbedder{api: c.api, modelID: modelID}
}

type titanEmbedder struct {
	api     bedrockAPI
	modelID string
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embed calls the model once per text; Titan accepts a single input per request.
func (e *titanEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(titanRequest{InputText: text})
		if err != nil {
			return nil, fmt.Errorf("failed to encode titan request: %w", err)
		}
		resp, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("titan embedding for input %d failed: %w", i, err)
		}
		var parsed titanResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode titan response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, fmt.Errorf("titan returned an empty embedding for input %d", i)
		}
		out = append(out, parsed.Embedding)
	}
	return out, nil
}
