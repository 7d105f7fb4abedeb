// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（gemini, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey 为空时读取 GEMINI_API_KEY / OPENAI_API_KEY。
	APIKey string `json:"-" mapstructure:"api-key"`

	ChatModel  string `json:"chat-model" mapstructure:"chat-model"`
	EmbedModel string `json:"embed-model" mapstructure:"embed-model"`

	// Timeout 单次 HTTP 请求超时时间。
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "gemini",
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		ChatModel:  "gemini-2.5-flash",
		EmbedModel: "text-embedding-004",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.EmbedModel,
		"chat_model":  o.ChatModel,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"llm.provider", o.Provider, "LLM provider (gemini, openai).")
	fs.StringVar(&o.BaseURL, p+"llm.base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, p+"llm.api-key", o.APIKey, "LLM API key.")
	fs.StringVar(&o.ChatModel, p+"llm.chat-model", o.ChatModel, "Chat model name.")
	fs.StringVar(&o.EmbedModel, p+"llm.embed-model", o.EmbedModel, "Embedding model name.")
	fs.DurationVar(&o.Timeout, p+"llm.timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"llm.max-retries", o.MaxRetries, "LLM maximum number of retries.")
}

// Complete completes the LLM provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		switch o.Provider {
		case "gemini":
			o.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			o.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return nil
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("llm.provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base-url is required"))
	}
	if o.ChatModel == "" {
		errs = append(errs, fmt.Errorf("llm.chat-model is required"))
	}
	if o.EmbedModel == "" {
		errs = append(errs, fmt.Errorf("llm.embed-model is required"))
	}
	if o.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api-key is required for %s provider", o.Provider))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	return errs
}
