package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/velora-ai/dealer-chat-backend/internal/config"
)

// OpenAIEmbedder implements search.Embedder over the embeddings endpoint of
// the primary provider.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	configured bool
}

// NewOpenAIEmbedder builds an embedder from the primary provider settings
// and the configured embedding model.
func NewOpenAIEmbedder(provider config.ProviderConfig, model string) *OpenAIEmbedder {
	e := &OpenAIEmbedder{model: model, configured: provider.APIKey != ""}
	if e.configured {
		e.client = openai.NewClient(
			option.WithBaseURL(provider.BaseURL),
			option.WithAPIKey(provider.APIKey),
		)
	}
	return e
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if !e.configured {
		return nil, ErrUnconfigured
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](
			openai.EmbeddingNewParamsInputArrayOfStrings([]string{text}),
		),
		Model: openai.F(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
