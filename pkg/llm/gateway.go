package llm

import (
	"context"
	stderrors "errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/pkg/errors"
)

// SessionConfig 会话创建参数。
type SessionConfig struct {
	Model             string
	SystemInstruction string
	Tools             []Tool
	Temperature       float64
}

// Session 一个有状态的对话。历史只在一轮调用成功完成后追加。
type Session struct {
	config SessionConfig

	mu      sync.Mutex
	history []Message
}

// Config 返回会话配置。
func (s *Session) Config() SessionConfig {
	return s.config
}

// History 返回历史消息的副本。
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Mark returns the current history length for a later Rollback.
func (s *Session) Mark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Rollback drops every message committed after mark.
func (s *Session) Rollback(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mark >= 0 && mark < len(s.history) {
		s.history = s.history[:mark]
	}
}

func (s *Session) request(next Message) *ChatRequest {
	s.mu.Lock()
	msgs := make([]Message, 0, len(s.history)+1)
	msgs = append(msgs, s.history...)
	s.mu.Unlock()
	msgs = append(msgs, next)

	return &ChatRequest{
		Model:             s.config.Model,
		SystemInstruction: s.config.SystemInstruction,
		Messages:          msgs,
		Tools:             s.config.Tools,
		Temperature:       Float64(s.config.Temperature),
	}
}

// Resolve answers call in history without asking the model, recording
// result as the function response and reply as the assistant's answer.
// Every function call left in history must be answered before the next
// user turn, or providers reject the request.
func (s *Session) Resolve(call FunctionCall, result map[string]any, reply string) {
	s.commit(functionResultMessage(call, result), Message{Role: RoleAssistant, Content: reply})
}

func (s *Session) commit(msgs ...Message) {
	s.mu.Lock()
	s.history = append(s.history, msgs...)
	s.mu.Unlock()
}

// Gateway 隔离与托管对话模型的全部交互：创建会话、同步发送、流式发送、回传函数结果。
type Gateway struct {
	provider ChatProvider
	timeout  time.Duration
}

// NewGateway 创建 Gateway。timeout 为单次模型调用的上限，<=0 表示不限制。
func NewGateway(provider ChatProvider, timeout time.Duration) *Gateway {
	return &Gateway{provider: provider, timeout: timeout}
}

// Provider 返回底层供应商。
func (g *Gateway) Provider() ChatProvider {
	return g.provider
}

// CreateSession 创建一个历史为空的新会话。
func (g *Gateway) CreateSession(cfg SessionConfig) *Session {
	return &Session{config: cfg}
}

// Send 发送一条用户消息并等待完整响应。
func (g *Gateway) Send(ctx context.Context, s *Session, message string) (*ChatResponse, error) {
	return g.send(ctx, s, Message{Role: RoleUser, Content: message})
}

// SendStream 发送一条用户消息，以分片序列返回响应。
// 只有在序列被完整消费且没有错误时，本轮对话才会写入历史。
func (g *Gateway) SendStream(ctx context.Context, s *Session, message string) iter.Seq2[*Chunk, error] {
	return g.stream(ctx, s, Message{Role: RoleUser, Content: message})
}

// SendFunctionResult 把函数执行结果交还给模型，继续同一会话。
func (g *Gateway) SendFunctionResult(ctx context.Context, s *Session, call FunctionCall, result map[string]any) (*ChatResponse, error) {
	return g.send(ctx, s, functionResultMessage(call, result))
}

// SendFunctionResultStream 与 SendFunctionResult 相同，但以流式返回。
func (g *Gateway) SendFunctionResultStream(ctx context.Context, s *Session, call FunctionCall, result map[string]any) iter.Seq2[*Chunk, error] {
	return g.stream(ctx, s, functionResultMessage(call, result))
}

func functionResultMessage(call FunctionCall, result map[string]any) Message {
	return Message{
		Role: RoleTool,
		FunctionResult: &FunctionResult{
			ID:       call.ID,
			Name:     call.Name,
			Response: result,
		},
	}
}

// assistantMessage keeps only the first function call: it is the only one
// ever answered, and providers require one response per recorded call.
func assistantMessage(text string, calls []FunctionCall) Message {
	if len(calls) > 1 {
		calls = calls[:1:1]
	}
	return Message{Role: RoleAssistant, Content: text, FunctionCalls: calls}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gateway) send(ctx context.Context, s *Session, next Message) (*ChatResponse, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.provider.Chat(ctx, s.request(next))
	if err != nil {
		return nil, Classify(ctx, err)
	}

	s.commit(next, assistantMessage(resp.Text, resp.FunctionCalls))
	return resp, nil
}

func (g *Gateway) stream(ctx context.Context, s *Session, next Message) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var (
			text  strings.Builder
			calls []FunctionCall
		)
		for chunk, err := range g.provider.ChatStream(ctx, s.request(next)) {
			if err != nil {
				yield(nil, Classify(ctx, err))
				return
			}
			if chunk == nil {
				continue
			}
			text.WriteString(chunk.Text)
			calls = append(calls, chunk.FunctionCalls...)
			if !yield(chunk, nil) {
				logger.Debugw("model stream abandoned by consumer", "provider", g.provider.Name())
				return
			}
		}

		s.commit(next, assistantMessage(text.String(), calls))
	}
}

// Classify 将供应商错误转换为 Errno，已是 Errno 的错误保持不变。
func Classify(ctx context.Context, err error) error {
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.ErrUpstreamTimeout.WithCause(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.ErrUpstreamProvider.WithCause(err)
}
