// Package openai 提供 OpenAI 及兼容 API（DeepSeek、SiliconFlow、vLLM 等）的 LLM 供应商实现。
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/llm/resilience"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

const ProviderName = "openai"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL 可设置为兼容 API 地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`
	ChatModel  string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout 非流式请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 非流式请求的最大重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider OpenAI 供应商实现。
type Provider struct {
	config *Config
	client *goopenai.Client
	retry  *resilience.RetryConfig
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建 OpenAI 供应商，未给出的项取 DefaultConfig。
func NewProvider(config map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = llm.Setting(config, "base_url", cfg.BaseURL)
	cfg.APIKey = llm.Setting(config, "api_key", cfg.APIKey)
	cfg.EmbedModel = llm.Setting(config, "embed_model", cfg.EmbedModel)
	cfg.ChatModel = llm.Setting(config, "chat_model", cfg.ChatModel)
	cfg.Timeout = llm.Setting(config, "timeout", cfg.Timeout)
	cfg.Organization = llm.Setting(config, "organization", cfg.Organization)
	if n, ok := config["max_retries"].(int); ok && n >= 0 {
		cfg.MaxRetries = n
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.OrgID = cfg.Organization
	// 超时由 context 控制，流式请求不能设置整体超时
	clientConfig.HTTPClient = &http.Client{}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1

	return &Provider{
		config: cfg,
		client: goopenai.NewClientWithConfig(clientConfig),
		retry:  retry,
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) unaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := p.unaryContext(ctx)
	defer cancel()

	var resp goopenai.EmbeddingResponse
	err := resilience.RetryWithBackoff(ctx, p.retry, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input: texts,
			Model: goopenai.EmbeddingModel(p.config.EmbedModel),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: 期望 %d 个向量，实际返回 %d 个", len(texts), len(resp.Data))
	}

	// 按 index 排序，保证与输入顺序一致
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("未返回向量嵌入")
	}
	return embeddings[0], nil
}

func (p *Provider) buildRequest(req *llm.ChatRequest) (goopenai.ChatCompletionRequest, error) {
	out := goopenai.ChatCompletionRequest{Model: req.Model}
	if out.Model == "" {
		out.Model = p.config.ChatModel
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.ResponseMIMEType == "application/json" {
		out.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if req.SystemInstruction != "" {
		out.Messages = append(out.Messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleUser:
			out.Messages = append(out.Messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case llm.RoleAssistant:
			m := goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, fc := range msg.FunctionCalls {
				args, err := json.Marshal(fc.Args)
				if err != nil {
					return out, fmt.Errorf("序列化函数参数失败: %w", err)
				}
				m.ToolCalls = append(m.ToolCalls, goopenai.ToolCall{
					ID:   fc.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      fc.Name,
						Arguments: string(args),
					},
				})
			}
			out.Messages = append(out.Messages, m)
		case llm.RoleTool:
			if msg.FunctionResult == nil {
				continue
			}
			body, err := json.Marshal(msg.FunctionResult.Response)
			if err != nil {
				return out, fmt.Errorf("序列化函数结果失败: %w", err)
			}
			out.Messages = append(out.Messages, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    string(body),
				Name:       msg.FunctionResult.Name,
				ToolCallID: msg.FunctionResult.ID,
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out, nil
}

func toFunctionCall(tc goopenai.ToolCall) (llm.FunctionCall, error) {
	call := llm.FunctionCall{ID: tc.ID, Name: tc.Function.Name}
	if tc.Function.Arguments == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); err != nil {
		return call, fmt.Errorf("解析函数参数失败: %w", err)
	}
	return call, nil
}

// Chat 调用 chat/completions。
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.unaryContext(ctx)
	defer cancel()

	var resp goopenai.ChatCompletionResponse
	err = resilience.RetryWithBackoff(ctx, p.retry, func() error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &llm.ChatResponse{}, nil
	}

	msg := resp.Choices[0].Message
	out := &llm.ChatResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		call, err := toFunctionCall(tc)
		if err != nil {
			return nil, err
		}
		out.FunctionCalls = append(out.FunctionCalls, call)
	}
	return out, nil
}

// ChatStream 调用 chat/completions（stream=true）。
// 函数调用的参数以增量方式到达，在流结束时合并为一个分片输出。
func (p *Provider) ChatStream(ctx context.Context, req *llm.ChatRequest) iter.Seq2[*llm.Chunk, error] {
	return func(yield func(*llm.Chunk, error) bool) {
		chatReq, err := p.buildRequest(req)
		if err != nil {
			yield(nil, err)
			return
		}
		chatReq.Stream = true

		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			yield(nil, fmt.Errorf("openai stream: %w", err))
			return
		}
		defer func() { _ = stream.Close() }()

		pending := make(map[int]*goopenai.ToolCall)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("openai stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := pending[idx]
				if !ok {
					acc = &goopenai.ToolCall{ID: tc.ID, Type: goopenai.ToolTypeFunction}
					pending[idx] = acc
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				acc.Function.Name += tc.Function.Name
				acc.Function.Arguments += tc.Function.Arguments
			}

			if delta.Content != "" {
				if !yield(&llm.Chunk{Text: delta.Content}, nil) {
					return
				}
			}
		}

		if len(pending) == 0 {
			return
		}
		indexes := make([]int, 0, len(pending))
		for idx := range pending {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		chunk := &llm.Chunk{}
		for _, idx := range indexes {
			call, err := toFunctionCall(*pending[idx])
			if err != nil {
				yield(nil, err)
				return
			}
			chunk.FunctionCalls = append(chunk.FunctionCalls, call)
		}
		yield(chunk, nil)
	}
}
