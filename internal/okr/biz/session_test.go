package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/llm"
)

func newRegistry(chat llm.ChatProvider, ttl time.Duration) *SessionRegistry {
	return NewSessionRegistry(llm.NewGateway(chat, time.Second), ChatSessionConfig("", "", DefaultChatTemperature), ttl)
}

func TestSessionRegistry_AcquireIsLazyAndKeyed(t *testing.T) {
	r := newRegistry(&fakeChat{}, 0)
	assert.Zero(t, r.Len())

	a, release := r.Acquire("alice")
	release()
	again, release := r.Acquire("alice")
	release()
	b, release := r.Acquire("bob")
	release()
	def, release := r.Acquire("")
	release()

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.NotNil(t, def)
	assert.Equal(t, 3, r.Len())

	cfg := a.Config()
	assert.Equal(t, DefaultChatModel, cfg.Model)
	assert.Equal(t, DefaultChatPrompt, cfg.SystemInstruction)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, CreateOKRTool, cfg.Tools[0].Name)
}

func TestSessionRegistry_ResetStartsEmpty(t *testing.T) {
	chat := &fakeChat{replies: []*llm.ChatResponse{{Text: "hi"}}}
	r := newRegistry(chat, 0)
	gw := llm.NewGateway(chat, time.Second)

	s, release := r.Acquire("alice")
	_, err := gw.Send(context.Background(), s, "hello")
	release()
	require.NoError(t, err)
	require.Len(t, s.History(), 2)

	r.Reset("alice")
	fresh, release := r.Acquire("alice")
	release()
	assert.NotSame(t, s, fresh)
	assert.Empty(t, fresh.History())
}

func TestSessionRegistry_SerializesTurns(t *testing.T) {
	r := newRegistry(&fakeChat{}, 0)

	_, release := r.Acquire("alice")
	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, rel := r.Acquire("alice")
		close(acquired)
		rel()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn entered while the first was running")
	case <-time.After(50 * time.Millisecond):
	}

	_, otherRelease := r.Acquire("bob")
	otherRelease()

	release()
	wg.Wait()
}

func TestSessionRegistry_Sweep(t *testing.T) {
	r := newRegistry(&fakeChat{}, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, release := r.Acquire("old")
	release()

	now = now.Add(90 * time.Minute)
	_, release = r.Acquire("new")
	release()

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_SweepSkipsTurnInFlight(t *testing.T) {
	r := newRegistry(&fakeChat{}, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	s, release := r.Acquire("slow")
	s.Resolve(llm.FunctionCall{ID: "call-1", Name: CreateOKRTool}, map[string]any{}, "ok")

	now = now.Add(2 * time.Hour)
	assert.Zero(t, r.Sweep())
	release()

	again, release := r.Acquire("slow")
	defer release()
	assert.Same(t, s, again)
	assert.Len(t, again.History(), 2)

	now = now.Add(2 * time.Hour)
	assert.Zero(t, r.Sweep())
}
