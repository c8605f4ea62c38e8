package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "text-embedding-004"

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey    string
	Model     string // default: text-embedding-004
	Dimension int    // optional output dimensionality
}

// GeminiModel generates embeddings with the Gemini API.
type GeminiModel struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiModel creates a Gemini embedding provider.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for gemini embeddings")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiModel{client: client, model: model, dimension: cfg.Dimension}, nil
}

func (m *GeminiModel) Name() string { return "gemini:" + m.model }

func (m *GeminiModel) Dimension() int {
	if m.dimension > 0 {
		return m.dimension
	}
	return 768
}

func (m *GeminiModel) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := m.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *GeminiModel) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: t}},
		}
	}
	cfg := &genai.EmbedContentConfig{}
	if m.dimension > 0 {
		d := int32(m.dimension)
		cfg.OutputDimensionality = &d
	}
	resp, err := m.client.Models.EmbedContent(ctx, m.model, contents, cfg)
	if err != nil {
		return nil, providerError(m.Name(), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, providerError(m.Name(), fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, providerError(m.Name(), fmt.Errorf("empty embedding for input %d", i))
		}
		out[i] = e.Values
	}
	return out, nil
}
