package biz

import (
	"context"
	"hash/fnv"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/internal/model"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/component/storage"
	"github.com/kart-io/okr-assistant/pkg/llm"
	storageopts "github.com/kart-io/okr-assistant/pkg/options/storage"
)

const testDim = 64

// bagEmbedder hashes words into a fixed-size count vector.
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *bagEmbedder) Name() string { return "bag" }

func (e *bagEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *bagEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,:!?")))
		v[h.Sum32()%testDim]++
	}
	return v, nil
}

func (e *bagEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeStream struct {
	chunks []*llm.Chunk
	err    error
}

// fakeChat replays scripted replies and streams in order.
type fakeChat struct {
	mu        sync.Mutex
	replies   []*llm.ChatResponse
	replyErrs []error
	streams   []fakeStream
	requests  []*llm.ChatRequest
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) record(req *llm.ChatRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	f.requests = append(f.requests, &cp)
}

func (f *fakeChat) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.record(req)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replyErrs) > 0 {
		err := f.replyErrs[0]
		f.replyErrs = f.replyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.replies) == 0 {
		return &llm.ChatResponse{}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeChat) ChatStream(_ context.Context, req *llm.ChatRequest) iter.Seq2[*llm.Chunk, error] {
	f.record(req)
	f.mu.Lock()
	var s fakeStream
	if len(f.streams) > 0 {
		s = f.streams[0]
		f.streams = f.streams[1:]
	}
	f.mu.Unlock()

	return func(yield func(*llm.Chunk, error) bool) {
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

func (f *fakeChat) Requests() []*llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*llm.ChatRequest(nil), f.requests...)
}

type fakeDrafter struct {
	draft   *Suggestion
	err     error
	queries []string
}

func (d *fakeDrafter) Suggest(_ context.Context, query string) (*Suggestion, error) {
	d.queries = append(d.queries, query)
	return d.draft, d.err
}

type staticRetriever struct {
	docs    []RetrievedDocument
	err     error
	queries []string
	ks      []int
}

func (r *staticRetriever) SimilaritySearch(_ context.Context, query string, k int) ([]RetrievedDocument, error) {
	r.queries = append(r.queries, query)
	r.ks = append(r.ks, k)
	return r.docs, r.err
}

// recordingPublisher keeps published events without dispatching them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *recordingPublisher) Publish(ev ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChangeEvent(nil), p.events...)
}

func newTestStore(t *testing.T) store.Factory {
	t.Helper()
	opts := storageopts.NewOptions()
	opts.Driver = storageopts.DriverSQLite
	opts.Path = ":memory:"

	db, err := storage.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	s := store.NewStore(db)
	require.NoError(t, s.AutoMigrate())
	return s
}

func seedObjective(t *testing.T, s store.Factory, title string, krs ...string) *model.Objective {
	t.Helper()
	obj := &model.Objective{Title: title}
	for _, d := range krs {
		obj.KeyResults = append(obj.KeyResults, model.KeyResult{Description: d})
	}
	require.NoError(t, s.Objectives().Create(context.Background(), obj))
	return obj
}

func sampleDraft() *Suggestion {
	return &Suggestion{
		Title: "Improve onboarding",
		KeyResults: []SuggestedKeyResult{
			{Description: "Cut time-to-first-value to 2 days", Progress: 0},
			{Description: "Raise activation rate to 60%", Progress: 10},
		},
	}
}
