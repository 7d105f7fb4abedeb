package biz

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
)

type chatFixture struct {
	chat      *fakeChat
	drafter   *fakeDrafter
	retriever *staticRetriever
	svc       *ChatService
}

func newChatFixture(chat *fakeChat) *chatFixture {
	f := &chatFixture{
		chat:      chat,
		drafter:   &fakeDrafter{draft: sampleDraft()},
		retriever: &staticRetriever{},
	}
	gw := llm.NewGateway(chat, time.Second)
	sessions := NewSessionRegistry(gw, ChatSessionConfig("", "", DefaultChatTemperature), 0)
	f.svc = NewChatService(gw, sessions, f.retriever, f.drafter, DefaultTopK)
	return f
}

func (f *chatFixture) stream(t *testing.T, message string) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := f.svc.Stream(context.Background(), "c1", message, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func (f *chatFixture) history() []llm.Message {
	s, release := f.svc.Sessions().Acquire("c1")
	defer release()
	return s.History()
}

func createCall(args map[string]any) llm.FunctionCall {
	return llm.FunctionCall{ID: "call-1", Name: CreateOKRTool, Args: args}
}

// requireCallsAnswered fails when a recorded function call has no matching
// function response right after it.
func requireCallsAnswered(t *testing.T, msgs []llm.Message) {
	t.Helper()
	for i, m := range msgs {
		for j, call := range m.FunctionCalls {
			k := i + 1 + j
			require.Less(t, k, len(msgs), "call %s has no response", call.ID)
			require.Equal(t, llm.RoleTool, msgs[k].Role, "call %s has no response", call.ID)
			require.NotNil(t, msgs[k].FunctionResult)
			require.Equal(t, call.ID, msgs[k].FunctionResult.ID)
		}
	}
}

func eventTypes(events []StreamEvent) []StreamEventType {
	out := make([]StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestBuildContextualMessage(t *testing.T) {
	assert.Equal(t,
		"Relevant Context:\nNo relevant documents found.\n\nUser Question:\nhi\n\nIf the question is unrelated to the context, answer normally.",
		BuildContextualMessage(nil, "hi"))

	msg := BuildContextualMessage([]RetrievedDocument{{Content: "doc one"}, {Content: "doc two"}}, "what now?")
	assert.Contains(t, msg, "Relevant Context:\ndoc one\n\ndoc two\n\nUser Question:\nwhat now?")
}

func TestChatStream_TextOnly(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{{chunks: []*llm.Chunk{{Text: "You have "}, {Text: "two OKRs."}}}}})
	f.retriever.docs = []RetrievedDocument{{Content: "Objective: Ship v2\nKey Results:\nBeta"}}

	events, err := f.stream(t, "summarize my okrs")
	require.NoError(t, err)
	assert.Equal(t, []StreamEventType{StreamText, StreamText, StreamDone}, eventTypes(events))
	assert.Equal(t, "two OKRs.", events[1].Text)

	reqs := f.chat.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultChatModel, reqs[0].Model)
	assert.Contains(t, reqs[0].Messages[0].Content, "Objective: Ship v2")
	assert.Contains(t, reqs[0].Messages[0].Content, "summarize my okrs")
	assert.Equal(t, []string{"summarize my okrs"}, f.retriever.queries)
	assert.Len(t, f.history(), 2)
}

func TestChatStream_ToolCallDrainsThenEmitsDraftFirst(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{
		{chunks: []*llm.Chunk{
			{Text: "Let me draft that."},
			{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "improve onboarding"})}},
			{Text: " One moment."},
		}},
		{chunks: []*llm.Chunk{{Text: "Here is a draft"}, {Text: " for onboarding."}}},
	}})

	events, err := f.stream(t, "create an okr to improve onboarding")
	require.NoError(t, err)
	assert.Equal(t,
		[]StreamEventType{StreamText, StreamText, StreamOKRData, StreamText, StreamText, StreamDone},
		eventTypes(events))
	assert.Equal(t, " One moment.", events[1].Text)
	assert.Equal(t, sampleDraft(), events[2].OKR)
	assert.Equal(t, []string{"improve onboarding"}, f.drafter.queries)

	reqs := f.chat.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	require.NotNil(t, last.FunctionResult)
	assert.Equal(t, CreateOKRTool, last.FunctionResult.Name)
	assert.Equal(t, "call-1", last.FunctionResult.ID)
	assert.Equal(t, "Improve onboarding", last.FunctionResult.Response["title"])

	assert.Len(t, f.history(), 4)
}

func TestChatStream_OnlyFirstToolCallHonoured(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{
		{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{
			createCall(map[string]any{"query": "first"}),
			createCall(map[string]any{"query": "second"}),
		}}}},
		{chunks: []*llm.Chunk{{Text: "Done."}}},
	}})

	events, err := f.stream(t, "two okrs please")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, f.drafter.queries)

	okr := 0
	for _, ev := range events {
		if ev.Type == StreamOKRData {
			okr++
		}
	}
	assert.Equal(t, 1, okr)

	reqs := f.chat.Requests()
	require.Len(t, reqs, 2)
	requireCallsAnswered(t, reqs[1].Messages)
	requireCallsAnswered(t, f.history())
	assert.Len(t, f.history()[1].FunctionCalls, 1)
}

func TestChatStream_FollowUpFallback(t *testing.T) {
	tests := []struct {
		name     string
		followUp fakeStream
	}{
		{"follow-up fails", fakeStream{err: stderrors.New("stream reset")}},
		{"follow-up is silent", fakeStream{}},
		{"follow-up fails after blank chunk", fakeStream{chunks: []*llm.Chunk{{Text: ""}}, err: stderrors.New("eof")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(&fakeChat{streams: []fakeStream{
				{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "q"})}}}},
				tt.followUp,
			}})

			events, err := f.stream(t, "make an okr")
			require.NoError(t, err)
			require.Equal(t, []StreamEventType{StreamOKRData, StreamText, StreamDone}, eventTypes(events))
			assert.Equal(t, FallbackAck, events[1].Text)

			history := f.history()
			requireCallsAnswered(t, history)
			assert.Equal(t, FallbackAck, history[len(history)-1].Content)

			// the conversation stays usable for the next turn
			f.chat.streams = []fakeStream{{chunks: []*llm.Chunk{{Text: "Anything else?"}}}}
			_, err = f.stream(t, "thanks")
			require.NoError(t, err)
			reqs := f.chat.Requests()
			requireCallsAnswered(t, reqs[len(reqs)-1].Messages)
		})
	}
}

func TestChatStream_FatalErrors(t *testing.T) {
	t.Run("retrieval fails", func(t *testing.T) {
		f := newChatFixture(&fakeChat{})
		f.retriever.err = errors.ErrUpstreamProvider
		events, err := f.stream(t, "hi")
		assert.ErrorIs(t, err, errors.ErrUpstreamProvider)
		assert.Empty(t, events)
		assert.Empty(t, f.chat.Requests())
	})

	t.Run("primary stream fails", func(t *testing.T) {
		f := newChatFixture(&fakeChat{streams: []fakeStream{{err: stderrors.New("connection refused")}}})
		events, err := f.stream(t, "hi")
		assert.ErrorIs(t, err, errors.ErrUpstreamProvider)
		assert.Empty(t, events)
		assert.Empty(t, f.history())
	})

	t.Run("missing query", func(t *testing.T) {
		f := newChatFixture(&fakeChat{streams: []fakeStream{
			{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{})}}}},
		}})
		events, err := f.stream(t, "make an okr")
		assert.ErrorIs(t, err, errors.ErrMalformedToolCall)
		assert.Empty(t, events)
		assert.Empty(t, f.drafter.queries)
		assert.Empty(t, f.history())
	})

	t.Run("malformed draft", func(t *testing.T) {
		f := newChatFixture(&fakeChat{streams: []fakeStream{
			{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "q"})}}}},
		}})
		f.drafter.draft = nil
		f.drafter.err = errors.ErrSuggestionMalformed
		events, err := f.stream(t, "make an okr")
		assert.ErrorIs(t, err, errors.ErrSuggestionMalformed)
		assert.Empty(t, events)
	})

	t.Run("blank message", func(t *testing.T) {
		f := newChatFixture(&fakeChat{})
		_, err := f.stream(t, "  ")
		assert.ErrorIs(t, err, errors.ErrEmptyMessage)
	})
}

func TestChatStream_UnsupportedTool(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{
		{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{{Name: "delete_okr"}}}}},
	}})

	events, err := f.stream(t, "delete everything")
	require.NoError(t, err)
	assert.Equal(t, []StreamEventType{StreamText, StreamDone}, eventTypes(events))
	assert.Equal(t, NoToolResult, events[0].Text)
	assert.Empty(t, f.history())
}

func TestChatStream_ConsumerGone(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{{chunks: []*llm.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}}}})
	gone := stderrors.New("client disconnected")

	writes := 0
	err := f.svc.Stream(context.Background(), "c1", "hi", func(StreamEvent) error {
		writes++
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, writes)
	assert.Empty(t, f.history())
}

func TestChatStream_ConsumerGoneAfterDraft(t *testing.T) {
	f := newChatFixture(&fakeChat{streams: []fakeStream{
		{chunks: []*llm.Chunk{{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "q"})}}}},
	}})
	gone := stderrors.New("client disconnected")

	err := f.svc.Stream(context.Background(), "c1", "make an okr", func(ev StreamEvent) error {
		if ev.Type == StreamOKRData {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
	requireCallsAnswered(t, f.history())
	assert.Len(t, f.history(), 4)
}

func TestChatHandle(t *testing.T) {
	t.Run("text reply", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{{Text: "You have no OKRs yet."}}})
		reply, err := f.svc.Handle(context.Background(), "c1", "what are my okrs?")
		require.NoError(t, err)
		assert.Equal(t, "You have no OKRs yet.", reply.Message)
		assert.Nil(t, reply.OKR)
	})

	t.Run("empty reply", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{{}}})
		reply, err := f.svc.Handle(context.Background(), "c1", "hello")
		require.NoError(t, err)
		assert.Empty(t, reply.Message)
	})

	t.Run("tool call", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{
			{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "onboarding"})}},
			{Text: "Drafted an onboarding OKR."},
		}})
		reply, err := f.svc.Handle(context.Background(), "c1", "make an okr")
		require.NoError(t, err)
		assert.Equal(t, "Drafted an onboarding OKR.", reply.Message)
		assert.Equal(t, sampleDraft(), reply.OKR)
		assert.Len(t, f.history(), 4)
	})

	t.Run("tool follow-up fails", func(t *testing.T) {
		f := newChatFixture(&fakeChat{
			replies:   []*llm.ChatResponse{{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "q"})}}},
			replyErrs: []error{nil, stderrors.New("503")},
		})
		reply, err := f.svc.Handle(context.Background(), "c1", "make an okr")
		require.NoError(t, err)
		assert.Equal(t, FallbackAck, reply.Message)
		assert.NotNil(t, reply.OKR)
		requireCallsAnswered(t, f.history())

		f.chat.replies = []*llm.ChatResponse{{Text: "Sure."}}
		_, err = f.svc.Handle(context.Background(), "c1", "thanks")
		require.NoError(t, err)
		reqs := f.chat.Requests()
		require.Len(t, reqs, 3)
		requireCallsAnswered(t, reqs[2].Messages)
	})

	t.Run("tool follow-up is silent", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{
			{FunctionCalls: []llm.FunctionCall{createCall(map[string]any{"query": "q"})}},
			{Text: "  "},
		}})
		reply, err := f.svc.Handle(context.Background(), "c1", "make an okr")
		require.NoError(t, err)
		assert.Equal(t, FallbackAck, reply.Message)

		history := f.history()
		require.Len(t, history, 4)
		requireCallsAnswered(t, history)
		assert.Equal(t, FallbackAck, history[3].Content)
	})

	t.Run("unsupported tool", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{{FunctionCalls: []llm.FunctionCall{{Name: "other"}}}}})
		reply, err := f.svc.Handle(context.Background(), "c1", "hi")
		require.NoError(t, err)
		assert.Equal(t, NoToolResult, reply.Message)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newChatFixture(&fakeChat{replyErrs: []error{stderrors.New("boom")}})
		_, err := f.svc.Handle(context.Background(), "c1", "hi")
		assert.ErrorIs(t, err, errors.ErrUpstreamProvider)
	})
}

func TestChatReset(t *testing.T) {
	f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{{Text: "one"}, {Text: "two"}}})

	_, err := f.svc.Handle(context.Background(), "c1", "first")
	require.NoError(t, err)
	require.Len(t, f.history(), 2)

	f.svc.Reset("c1")
	assert.Empty(t, f.history())

	_, err = f.svc.Handle(context.Background(), "c1", "second")
	require.NoError(t, err)
	reqs := f.chat.Requests()
	assert.Len(t, reqs[1].Messages, 1)
}

func TestChatSetTopK(t *testing.T) {
	f := newChatFixture(&fakeChat{replies: []*llm.ChatResponse{{Text: "one"}, {Text: "two"}}})
	assert.Equal(t, DefaultTopK, f.svc.TopK())

	_, err := f.svc.Handle(context.Background(), "c1", "first")
	require.NoError(t, err)

	f.svc.SetTopK(0)
	assert.Equal(t, DefaultTopK, f.svc.TopK())
	f.svc.SetTopK(2)
	_, err = f.svc.Handle(context.Background(), "c1", "second")
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultTopK, 2}, f.retriever.ks)
}
