package biz

import (
	"context"
	"strings"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
)

// DefaultTopK 每轮对话检索的文档数量。
const DefaultTopK = 5

// RetrievedDocument 检索结果。
type RetrievedDocument struct {
	Content  string                 `json:"content"`
	Metadata model.DocumentMetadata `json:"metadata"`
	Score    float64                `json:"score"`
}

// Retriever 负责向量化和相似度检索。
type Retriever struct {
	embedder llm.EmbeddingProvider
	searcher store.Searcher
}

// NewRetriever 创建检索器实例。
func NewRetriever(embedder llm.EmbeddingProvider, searcher store.Searcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher}
}

// Embed vectorizes text. Blank input fails without calling the provider.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrEmptyEmbeddingInput
	}
	vec, err := r.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, llm.Classify(ctx, err)
	}
	return vec, nil
}

// SimilaritySearch returns at most k documents nearest to query, nearest
// first. An empty index yields an empty slice.
func (r *Retriever) SimilaritySearch(ctx context.Context, query string, k int) ([]RetrievedDocument, error) {
	vec, err := r.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.searcher.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	out := make([]RetrievedDocument, 0, len(hits))
	for _, h := range hits {
		out = append(out, RetrievedDocument{
			Content:  h.Document.Content,
			Metadata: h.Document.Metadata.Data(),
			Score:    h.Score,
		})
	}
	return out, nil
}
