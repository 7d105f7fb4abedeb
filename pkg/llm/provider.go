// Package llm 定义模型供应商抽象、供应商注册表和会话网关。
package llm

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/kart-io/okr-assistant/pkg/errors"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// ChatProvider 无状态的对话供应商，会话历史由 Gateway 维护。
type ChatProvider interface {
	// Chat 发送完整请求并等待完整响应。
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// ChatStream 返回有序、有限且只能消费一次的分片序列。
	ChatStream(ctx context.Context, req *ChatRequest) iter.Seq2[*Chunk, error]
	Name() string
}

// Provider serves both embeddings and chat.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Factory builds a provider from a flat config map (see
// options.ProviderOptions.ToConfigMap).
type Factory func(config map[string]any) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterProvider makes a provider available under name. Providers
// register themselves from init; registering a name again replaces it.
func RegisterProvider(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// NewProvider builds the provider registered under name.
func NewProvider(name string, config map[string]any) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.ErrProviderNotFound.WithMessagef("Model provider %q is not registered (known: %v)", name, ListProviders())
	}
	return f(config)
}

// NewEmbeddingProvider builds name and narrows it to embeddings.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider builds name and narrows it to chat.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders returns the registered names, sorted.
func ListProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// Setting reads key from a factory config map. Missing keys, values of
// another type and zero values all yield fallback.
func Setting[T comparable](config map[string]any, key string, fallback T) T {
	v, ok := config[key].(T)
	var zero T
	if !ok || v == zero {
		return fallback
	}
	return v
}
