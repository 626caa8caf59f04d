package retrieval

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/ragflow/graph/model"
)

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultEmbeddingModel is the OpenAI model OpenAIEmbedder uses by default.
// Its vectors have 1536 dimensions.
const DefaultEmbeddingModel = "text-embedding-3-small"

// embedBatch is the number of texts sent per embeddings request.
const embedBatch = 256

type embeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAIEmbedder embeds texts with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	modelName string
	api       embeddingsAPI
	usage     *model.UsageTracker
}

// NewOpenAIEmbedder creates an embedder for modelName (DefaultEmbeddingModel
// when empty).
func NewOpenAIEmbedder(apiKey, modelName string, opts ...option.RequestOption) *OpenAIEmbedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIEmbedder{modelName: modelName, api: &client.Embeddings}
}

// WithUsage records the token usage of every request on t and returns e.
func (e *OpenAIEmbedder) WithUsage(t *model.UsageTracker) *OpenAIEmbedder {
	e.usage = t
	return e
}

// Embed returns one vector per text, in order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatch {
		batch := texts[start:min(start+embedBatch, len(texts))]
		resp, err := e.api.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.modelName),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		if err != nil {
			return nil, model.ClassifyError("openai", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Data), len(batch))
		}

		vectors := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, fmt.Errorf("embed: vector index %d out of range", d.Index)
			}
			vectors[d.Index] = toFloat32(d.Embedding)
		}
		out = append(out, vectors...)

		if e.usage != nil {
			e.usage.Record(e.modelName, model.Usage{InputTokens: int(resp.Usage.PromptTokens)})
		}
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
