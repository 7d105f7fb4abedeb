package biz

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
)

const (
	DefaultChatModel       = "gemini-2.5-flash"
	DefaultChatTemperature = 0.7
)

var tracer = otel.Tracer("github.com/kart-io/okr-assistant/internal/okr/biz")

// CreateOKRToolDeclaration declares the create_okr function to the model.
func CreateOKRToolDeclaration() llm.Tool {
	return llm.Tool{
		Name:        CreateOKRTool,
		Description: "Creates a new OKR (Objective and Key Results) based on user input. Use this when the user asks to create, generate, or suggest OKRs.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"query": {
					Type:        "string",
					Description: "The user's description or request for creating an OKR. Include all context about what they want to achieve.",
				},
			},
			Required: []string{"query"},
		},
	}
}

// ChatSessionConfig returns the session settings for the assistant, filling
// blanks with the built-in defaults.
func ChatSessionConfig(model, systemPrompt string, temperature float64) llm.SessionConfig {
	if model == "" {
		model = DefaultChatModel
	}
	if systemPrompt == "" {
		systemPrompt = DefaultChatPrompt
	}
	return llm.SessionConfig{
		Model:             model,
		SystemInstruction: systemPrompt,
		Tools:             []llm.Tool{CreateOKRToolDeclaration()},
		Temperature:       temperature,
	}
}

// BuildContextualMessage wraps the user message with retrieved context.
func BuildContextualMessage(docs []RetrievedDocument, message string) string {
	ctxBlock := noContextPlaceholder
	if len(docs) > 0 {
		parts := make([]string, len(docs))
		for i, d := range docs {
			parts[i] = d.Content
		}
		ctxBlock = strings.Join(parts, "\n\n")
	}
	return strings.TrimSpace(fmt.Sprintf(
		"Relevant Context:\n%s\n\nUser Question:\n%s\n\nIf the question is unrelated to the context, answer normally.",
		ctxBlock, message))
}

// ContextRetriever finds documents related to a message.
type ContextRetriever interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]RetrievedDocument, error)
}

// Drafter produces an OKR draft from a free-form request.
type Drafter interface {
	Suggest(ctx context.Context, query string) (*Suggestion, error)
}

// StreamEventType 流事件类型。
type StreamEventType string

const (
	StreamText    StreamEventType = "text"
	StreamOKRData StreamEventType = "okr_data"
	StreamDone    StreamEventType = "done"
)

// StreamEvent is one item written to the client during a streamed turn.
type StreamEvent struct {
	Type StreamEventType
	Text string
	OKR  *Suggestion
}

// EmitFunc delivers one event. A non-nil error means the consumer is gone
// and the turn stops.
type EmitFunc func(StreamEvent) error

// Reply 非流式对话结果。
type Reply struct {
	Message string      `json:"message"`
	OKR     *Suggestion `json:"okr,omitempty"`
}

// ChatService 对话编排：检索增强、工具调用拦截、草稿生成和流式输出。
type ChatService struct {
	gateway   *llm.Gateway
	sessions  *SessionRegistry
	retriever ContextRetriever
	drafter   Drafter
	topK      atomic.Int64
}

// NewChatService 创建对话服务。
func NewChatService(gateway *llm.Gateway, sessions *SessionRegistry, retriever ContextRetriever, drafter Drafter, topK int) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	c := &ChatService{
		gateway:   gateway,
		sessions:  sessions,
		retriever: retriever,
		drafter:   drafter,
	}
	c.topK.Store(int64(topK))
	return c
}

// SetTopK changes how many documents later turns retrieve. Non-positive
// values are ignored.
func (c *ChatService) SetTopK(k int) {
	if k > 0 {
		c.topK.Store(int64(k))
	}
}

// TopK returns the current retrieval depth.
func (c *ChatService) TopK() int {
	return int(c.topK.Load())
}

// Sessions exposes the registry.
func (c *ChatService) Sessions() *SessionRegistry {
	return c.sessions
}

// Reset discards the conversation's history.
func (c *ChatService) Reset(conversationID string) {
	c.sessions.Reset(conversationID)
}

func (c *ChatService) buildPrompt(ctx context.Context, message string) (string, error) {
	docs, err := c.retriever.SimilaritySearch(ctx, message, c.TopK())
	if err != nil {
		return "", err
	}
	return BuildContextualMessage(docs, message), nil
}

// runTool executes a create_okr call. A nil draft with a nil error means the
// tool is not one this service handles.
func (c *ChatService) runTool(ctx context.Context, call llm.FunctionCall) (*Suggestion, error) {
	calls := metrics.Default().ToolCalls
	if call.Name != CreateOKRTool {
		calls.WithLabelValues("other", metrics.StatusUnsupported).Inc()
		logger.Warnw("Unsupported tool call ignored", "tool", call.Name)
		return nil, nil
	}
	query, ok := call.StringArg("query")
	if !ok {
		calls.WithLabelValues(CreateOKRTool, metrics.StatusError).Inc()
		return nil, errors.ErrMalformedToolCall.WithMessage("Missing query parameter in function call")
	}
	draft, err := c.drafter.Suggest(ctx, query)
	calls.WithLabelValues(CreateOKRTool, metrics.Status(err)).Inc()
	return draft, err
}

// turn 一次对话的追踪与指标。
type turn struct {
	span  trace.Span
	mode  string
	start time.Time
}

func startTurn(ctx context.Context, mode, conversationID string) (context.Context, *turn) {
	ctx, span := tracer.Start(ctx, "chat."+mode, trace.WithAttributes(attribute.String("okr.conversation_id", conversationID)))
	return ctx, &turn{span: span, mode: mode, start: time.Now()}
}

func (t *turn) end(err error) {
	m := metrics.Default()
	m.ChatTurns.WithLabelValues(t.mode, metrics.Status(err)).Inc()
	m.ChatDuration.WithLabelValues(t.mode).Observe(time.Since(t.start).Seconds())
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()
}

// Handle runs one turn and returns the final text. An empty Message means
// the model produced nothing.
func (c *ChatService) Handle(ctx context.Context, conversationID, message string) (reply *Reply, err error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.ErrEmptyMessage
	}
	ctx, t := startTurn(ctx, "send", conversationID)
	defer func() { t.end(err) }()

	session, release := c.sessions.Acquire(conversationID)
	defer release()
	mark := session.Mark()

	prompt, err := c.buildPrompt(ctx, message)
	if err != nil {
		return nil, err
	}

	resp, err := c.gateway.Send(ctx, session, prompt)
	if err != nil {
		return nil, err
	}
	if len(resp.FunctionCalls) == 0 {
		return &Reply{Message: resp.Text}, nil
	}

	call := resp.FunctionCalls[0]
	draft, err := c.runTool(ctx, call)
	if err != nil {
		session.Rollback(mark)
		return nil, err
	}
	if draft == nil {
		session.Rollback(mark)
		return &Reply{Message: NoToolResult}, nil
	}

	answered := session.Mark()
	follow, err := c.gateway.SendFunctionResult(ctx, session, call, draft.ToMap())
	if err != nil || strings.TrimSpace(follow.Text) == "" {
		if err != nil {
			logger.Warnw("Follow-up after create_okr failed", "conversation_id", conversationID, "error", err.Error())
		}
		session.Rollback(answered)
		session.Resolve(call, draft.ToMap(), FallbackAck)
		return &Reply{Message: FallbackAck, OKR: draft}, nil
	}
	return &Reply{Message: follow.Text, OKR: draft}, nil
}

// Stream runs one turn and delivers it through emit: text fragments as they
// arrive, at most one okr_data event before any follow-up text, then done.
// The primary model stream is always drained before a tool call is acted
// upon. Errors before the tool ran are returned; a failed follow-up
// degrades to a fixed acknowledgement.
func (c *ChatService) Stream(ctx context.Context, conversationID, message string, emit EmitFunc) (err error) {
	if strings.TrimSpace(message) == "" {
		return errors.ErrEmptyMessage
	}
	ctx, t := startTurn(ctx, "stream", conversationID)
	defer func() { t.end(err) }()

	session, release := c.sessions.Acquire(conversationID)
	defer release()
	mark := session.Mark()

	prompt, err := c.buildPrompt(ctx, message)
	if err != nil {
		return err
	}

	var pending *llm.FunctionCall
	for chunk, err := range c.gateway.SendStream(ctx, session, prompt) {
		if err != nil {
			return err
		}
		for _, call := range chunk.FunctionCalls {
			if pending == nil {
				pending = &call
				continue
			}
			logger.Warnw("Additional tool call ignored", "tool", call.Name, "conversation_id", conversationID)
		}
		if chunk.Text != "" {
			if err := emit(StreamEvent{Type: StreamText, Text: chunk.Text}); err != nil {
				return err
			}
		}
	}

	if pending != nil {
		if err := c.streamTool(ctx, session, mark, *pending, emit); err != nil {
			return err
		}
	}

	return emit(StreamEvent{Type: StreamDone})
}

func (c *ChatService) streamTool(ctx context.Context, session *llm.Session, mark int, call llm.FunctionCall, emit EmitFunc) error {
	draft, err := c.runTool(ctx, call)
	if err != nil {
		session.Rollback(mark)
		return err
	}
	if draft == nil {
		session.Rollback(mark)
		return emit(StreamEvent{Type: StreamText, Text: NoToolResult})
	}

	// 追问没有完整结束（出错、没有文本或客户端断开）时，用固定确认语回答这次函数调用，
	// 保证历史中的函数调用都有结果。
	answered := session.Mark()
	resolved := false
	defer func() {
		if !resolved {
			session.Rollback(answered)
			session.Resolve(call, draft.ToMap(), FallbackAck)
		}
	}()

	if err := emit(StreamEvent{Type: StreamOKRData, OKR: draft}); err != nil {
		return err
	}

	narrated := false
	for chunk, err := range c.gateway.SendFunctionResultStream(ctx, session, call, draft.ToMap()) {
		if err != nil {
			logger.Warnw("Follow-up stream after create_okr failed", "error", err.Error())
			break
		}
		if chunk.Text == "" {
			continue
		}
		narrated = true
		if err := emit(StreamEvent{Type: StreamText, Text: chunk.Text}); err != nil {
			return err
		}
	}
	// the gateway commits the follow-up only when its stream completed
	resolved = narrated && session.Mark() > answered
	if !narrated {
		return emit(StreamEvent{Type: StreamText, Text: FallbackAck})
	}
	return nil
}
