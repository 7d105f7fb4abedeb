package biz

import (
	"context"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
	"github.com/kart-io/okr-assistant/pkg/validator"
)

// DefaultSuggestionModel 生成 OKR 草稿使用的模型。
const DefaultSuggestionModel = "gemini-flash-lite-latest"

// SuggestedKeyResult 草稿中的关键结果。
type SuggestedKeyResult struct {
	Description string `json:"description" validate:"required,notblank"`
	Progress    int    `json:"progress" validate:"min=0,max=100"`
}

// Suggestion 模型生成的 OKR 草稿，未持久化。
type Suggestion struct {
	Title      string               `json:"title" validate:"required,notblank"`
	KeyResults []SuggestedKeyResult `json:"keyResults" validate:"required,dive"`
}

// ToMap converts the draft into the payload handed back to the chat model
// and streamed to the client.
func (s *Suggestion) ToMap() map[string]any {
	krs := make([]any, len(s.KeyResults))
	for i, kr := range s.KeyResults {
		krs[i] = map[string]any{
			"description": kr.Description,
			"progress":    kr.Progress,
		}
	}
	return map[string]any{
		"title":      s.Title,
		"keyResults": krs,
	}
}

// ToObjective converts the draft into an unsaved objective.
func (s *Suggestion) ToObjective() *model.Objective {
	obj := &model.Objective{Title: s.Title}
	for _, kr := range s.KeyResults {
		obj.KeyResults = append(obj.KeyResults, model.KeyResult{
			Description: kr.Description,
			Progress:    kr.Progress,
			IsCompleted: IsKeyResultCompleted(kr.Progress),
		})
	}
	return obj
}

var fencePattern = regexp.MustCompile("```json|```")

// ParseSuggestion strips markdown fences and validates the draft shape.
// Anything that does not match is rejected rather than repaired.
func ParseSuggestion(text string) (*Suggestion, error) {
	raw := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	if raw == "" {
		return nil, errors.ErrSuggestionMalformed.WithMessage("Model returned an empty OKR draft")
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, errors.ErrSuggestionMalformed.WithCause(err)
	}
	if verrs := validator.StructWithLang(s, validator.LangEN); verrs != nil {
		return nil, errors.ErrSuggestionMalformed.WithMessagef("Model returned a malformed OKR draft: %s", verrs.First())
	}
	return &s, nil
}

// SuggesterConfig 草稿生成配置。
type SuggesterConfig struct {
	Model        string
	SystemPrompt string
}

// Suggester turns a free-form request into a validated OKR draft.
type Suggester struct {
	provider llm.ChatProvider
	config   SuggesterConfig
}

// NewSuggester 创建草稿生成器，空配置项使用内置默认值。
func NewSuggester(provider llm.ChatProvider, cfg SuggesterConfig) *Suggester {
	if cfg.Model == "" {
		cfg.Model = DefaultSuggestionModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSuggestionPrompt
	}
	return &Suggester{provider: provider, config: cfg}
}

// Suggest asks the model for a JSON draft and validates it.
func (s *Suggester) Suggest(ctx context.Context, query string) (*Suggestion, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrInvalidParam.WithMessage("query is required")
	}

	resp, err := s.provider.Chat(ctx, &llm.ChatRequest{
		Model:             s.config.Model,
		SystemInstruction: s.config.SystemPrompt,
		Messages:          []llm.Message{{Role: llm.RoleUser, Content: query}},
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, llm.Classify(ctx, err)
	}

	suggestion, err := ParseSuggestion(resp.Text)
	if err != nil {
		logger.Warnw("Rejected OKR draft", "model", s.config.Model, "error", err.Error())
		return nil, err
	}
	return suggestion, nil
}
