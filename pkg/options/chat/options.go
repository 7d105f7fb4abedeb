// Package chat provides options for the chat assistant and OKR suggestions.
package chat

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the assistant. Empty prompts fall back to the built-in
// instructions.
type Options struct {
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	// SystemPrompt is the chat session system instruction.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	SuggestionModel  string `json:"suggestion-model" mapstructure:"suggestion-model"`
	SuggestionPrompt string `json:"suggestion-prompt" mapstructure:"suggestion-prompt"`

	// TopK is the number of documents retrieved per turn.
	TopK            int           `json:"top-k" mapstructure:"top-k"`
	ProviderTimeout time.Duration `json:"provider-timeout" mapstructure:"provider-timeout"`

	ConversationHeader string        `json:"conversation-header" mapstructure:"conversation-header"`
	ConversationCookie string        `json:"conversation-cookie" mapstructure:"conversation-cookie"`
	SessionIdleTTL     time.Duration `json:"session-idle-ttl" mapstructure:"session-idle-ttl"`

	ReindexOnStart bool `json:"reindex-on-start" mapstructure:"reindex-on-start"`
}

// NewOptions returns the defaults used by the hosted Gemini models.
func NewOptions() *Options {
	return &Options{
		Model:              "gemini-2.5-flash",
		Temperature:        0.7,
		SuggestionModel:    "gemini-flash-lite-latest",
		TopK:               5,
		ProviderTimeout:    60 * time.Second,
		ConversationHeader: "X-Conversation-ID",
		ConversationCookie: "okr_conversation",
		SessionIdleTTL:     2 * time.Hour,
	}
}

// AddFlags adds chat flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Model, p+"chat.model", o.Model, "Chat model name.")
	fs.Float64Var(&o.Temperature, p+"chat.temperature", o.Temperature, "Chat sampling temperature.")
	fs.StringVar(&o.SystemPrompt, p+"chat.system-prompt", o.SystemPrompt, "Chat system instruction. Empty uses the built-in prompt.")
	fs.StringVar(&o.SuggestionModel, p+"chat.suggestion-model", o.SuggestionModel, "Model used to draft OKRs.")
	fs.StringVar(&o.SuggestionPrompt, p+"chat.suggestion-prompt", o.SuggestionPrompt, "OKR drafting instruction. Empty uses the built-in prompt.")
	fs.IntVar(&o.TopK, p+"chat.top-k", o.TopK, "Documents retrieved as context for each turn.")
	fs.DurationVar(&o.ProviderTimeout, p+"chat.provider-timeout", o.ProviderTimeout, "Upper bound for one chat turn against the model provider.")
	fs.StringVar(&o.ConversationHeader, p+"chat.conversation-header", o.ConversationHeader, "Header carrying the conversation id.")
	fs.StringVar(&o.ConversationCookie, p+"chat.conversation-cookie", o.ConversationCookie, "Cookie carrying the conversation id.")
	fs.DurationVar(&o.SessionIdleTTL, p+"chat.session-idle-ttl", o.SessionIdleTTL, "Idle conversations older than this are dropped.")
	fs.BoolVar(&o.ReindexOnStart, p+"chat.reindex-on-start", o.ReindexOnStart, "Rebuild every objective document at startup.")
}

// Validate validates the chat options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("chat.model is required"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("chat.top-k must be positive"))
	}
	if o.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chat.provider-timeout must be positive"))
	}
	return errs
}
