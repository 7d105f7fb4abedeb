package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/pkg/llm"
)

// DefaultConversationID is used when a request names no conversation.
const DefaultConversationID = "default"

type conversation struct {
	session  *llm.Session
	lastUsed time.Time
	// active 正在进行的对话轮数，大于 0 时不会被回收。
	active int
}

// SessionRegistry holds one chat session per conversation id. Turns on the
// same conversation are serialized; different conversations run in parallel.
type SessionRegistry struct {
	gateway *llm.Gateway
	config  llm.SessionConfig
	idleTTL time.Duration
	now     func() time.Time

	locks *keyedMutex

	mu       sync.Mutex
	sessions map[string]*conversation
}

// NewSessionRegistry 创建会话注册表。idleTTL<=0 表示不回收空闲会话。
func NewSessionRegistry(gateway *llm.Gateway, cfg llm.SessionConfig, idleTTL time.Duration) *SessionRegistry {
	return &SessionRegistry{
		gateway:  gateway,
		config:   cfg,
		idleTTL:  idleTTL,
		now:      time.Now,
		locks:    newKeyedMutex(),
		sessions: make(map[string]*conversation),
	}
}

func normalizeConversationID(id string) string {
	if id == "" {
		return DefaultConversationID
	}
	return id
}

// Acquire locks the conversation and returns its session, creating one on
// first use. The caller must call release when the turn ends.
func (r *SessionRegistry) Acquire(id string) (session *llm.Session, release func()) {
	id = normalizeConversationID(id)
	unlock := r.locks.Lock(id)

	r.mu.Lock()
	conv, ok := r.sessions[id]
	if !ok {
		conv = &conversation{session: r.gateway.CreateSession(r.config)}
		r.sessions[id] = conv
		logger.Debugw("Chat session created", "conversation_id", id)
	}
	conv.lastUsed = r.now()
	conv.active++
	r.mu.Unlock()

	return conv.session, func() {
		r.mu.Lock()
		conv.lastUsed = r.now()
		conv.active--
		r.mu.Unlock()
		unlock()
	}
}

// Reset replaces the conversation's session with a fresh one. It waits for
// an in-flight turn on the same conversation to finish.
func (r *SessionRegistry) Reset(id string) {
	id = normalizeConversationID(id)
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.Lock()
	r.sessions[id] = &conversation{
		session:  r.gateway.CreateSession(r.config),
		lastUsed: r.now(),
	}
	r.mu.Unlock()
	logger.Infow("Chat session reset", "conversation_id", id)
}

// Len returns the number of live conversations.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops conversations idle for longer than the TTL. A conversation
// with a turn in flight is never dropped, however long the turn runs.
func (r *SessionRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, conv := range r.sessions {
		if conv.active == 0 && conv.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle conversations every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Debugw("Idle chat sessions dropped", "count", n)
			}
		}
	}
}
