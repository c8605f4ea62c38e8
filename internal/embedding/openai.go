package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey    string
	Model     string // default: text-embedding-3-small
	BaseURL   string // optional OpenAI-compatible endpoint
	Dimension int    // optional; 0 keeps the model's native size
}

// OpenAIModel generates embeddings with the OpenAI embeddings API.
type OpenAIModel struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIModel creates an OpenAI embedding provider.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for openai embeddings")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIModel{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: cfg.Dimension,
	}, nil
}

func (m *OpenAIModel) Name() string { return "openai:" + m.model }

// Dimension returns the configured dimension or the model's native size.
func (m *OpenAIModel) Dimension() int {
	if m.dimension > 0 {
		return m.dimension
	}
	switch m.model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := m.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *OpenAIModel) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(m.model),
	}
	if m.dimension > 0 {
		params.Dimensions = openai.Int(int64(m.dimension))
	}
	resp, err := m.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, providerError(m.Name(), err)
	}

	// The API may return items out of order; place them by index.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, providerError(m.Name(), fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return out, nil
}
