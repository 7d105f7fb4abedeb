// Package gemini talks to the Gemini Generative Language REST API:
// generateContent, streamGenerateContent over SSE, function calling and
// batchEmbedContents.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/utils/httpclient"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

const ProviderName = "gemini"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config Gemini 连接参数。
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	// ChatModel 请求未指定模型时使用。
	ChatModel string
	// Timeout 只作用于非流式请求，流式请求由 context 控制。
	Timeout time.Duration
	// MaxRetries 非流式请求遇到 5xx 时的重试次数。
	MaxRetries int
}

// DefaultConfig points at the public v1beta endpoint.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		EmbedModel: "text-embedding-004",
		ChatModel:  "gemini-2.5-flash",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider implements llm.Provider on top of the REST API.
type Provider struct {
	cfg    *Config
	client *httpclient.Client
	stream *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider is the registry factory. It reads the keys written by
// options.ProviderOptions.ToConfigMap.
func NewProvider(config map[string]any) (llm.Provider, error) {
	def := DefaultConfig()
	cfg := &Config{
		BaseURL:    llm.Setting(config, "base_url", def.BaseURL),
		APIKey:     llm.Setting(config, "api_key", ""),
		EmbedModel: llm.Setting(config, "embed_model", def.EmbedModel),
		ChatModel:  llm.Setting(config, "chat_model", def.ChatModel),
		Timeout:    llm.Setting(config, "timeout", def.Timeout),
		MaxRetries: def.MaxRetries,
	}
	if n, ok := config["max_retries"].(int); ok && n >= 0 {
		cfg.MaxRetries = n
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api_key is required")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig builds a provider from cfg as is.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		stream: httpclient.NewClient(0, 0),
	}
}

func (p *Provider) Name() string { return ProviderName }

// endpoint builds the URL of a model method, e.g. "generateContent".
func (p *Provider) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", p.cfg.BaseURL, model, method)
}

// post encodes body as the JSON payload of a POST to url.
func (p *Provider) post(ctx context.Context, url string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	return req, nil
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed 一次请求批量生成向量，返回顺序与 texts 一致。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := batchEmbedRequest{Requests: make([]embedContentRequest, 0, len(texts))}
	model := "models/" + p.cfg.EmbedModel
	for _, text := range texts {
		batch.Requests = append(batch.Requests, embedContentRequest{
			Model:   model,
			Content: content{Parts: []part{{Text: text}}},
		})
	}

	req, err := p.post(ctx, p.endpoint(p.cfg.EmbedModel, "batchEmbedContents"), batch)
	if err != nil {
		return nil, err
	}
	var resp batchEmbedResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if got := len(resp.Embeddings); got != len(texts) {
		return nil, fmt.Errorf("gemini embed: asked for %d vectors, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i := range resp.Embeddings {
		vectors[i] = resp.Embeddings[i].Values
	}
	return vectors, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
