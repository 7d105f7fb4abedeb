package resilience

import (
	"context"
	"iter"

	"github.com/kart-io/okr-assistant/pkg/llm"
)

// EmbeddingProvider 带熔断的 Embedding Provider 包装器。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	cb       *CircuitBreaker
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)

// WrapEmbedding 为 Embedding Provider 加上熔断器。
func WrapEmbedding(provider llm.EmbeddingProvider, config *CircuitBreakerConfig) *EmbeddingProvider {
	return &EmbeddingProvider{
		provider: provider,
		cb:       NewCircuitBreaker(provider.Name()+"-embed", config),
	}
}

func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.cb.Execute(func() error {
		var err error
		out, err = r.provider.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.cb.Execute(func() error {
		var err error
		out, err = r.provider.EmbedSingle(ctx, text)
		return err
	})
	return out, err
}

func (r *EmbeddingProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回内部熔断器。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker { return r.cb }

// ChatProvider 带熔断的 Chat Provider 包装器。
type ChatProvider struct {
	provider llm.ChatProvider
	cb       *CircuitBreaker
}

var _ llm.ChatProvider = (*ChatProvider)(nil)

// WrapChat 为 Chat Provider 加上熔断器。
func WrapChat(provider llm.ChatProvider, config *CircuitBreakerConfig) *ChatProvider {
	return &ChatProvider{
		provider: provider,
		cb:       NewCircuitBreaker(provider.Name()+"-chat", config),
	}
}

func (r *ChatProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var out *llm.ChatResponse
	err := r.cb.Execute(func() error {
		var err error
		out, err = r.provider.Chat(ctx, req)
		return err
	})
	return out, err
}

// ChatStream 在流开始前检查熔断器，在流结束时记录结果。
// 消费方提前终止不计为失败。
func (r *ChatProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) iter.Seq2[*llm.Chunk, error] {
	return func(yield func(*llm.Chunk, error) bool) {
		if err := r.cb.Allow(); err != nil {
			yield(nil, err)
			return
		}

		var streamErr error
		defer func() { r.cb.Record(streamErr) }()

		for chunk, err := range r.provider.ChatStream(ctx, req) {
			if err != nil {
				if ctx.Err() == nil {
					streamErr = err
				}
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (r *ChatProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回内部熔断器。
func (r *ChatProvider) CircuitBreaker() *CircuitBreaker { return r.cb }
