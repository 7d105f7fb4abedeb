package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/okr/handler"
	"github.com/kart-io/okr-assistant/internal/okr/router"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/component/storage"
	"github.com/kart-io/okr-assistant/pkg/infra/middleware"
	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
	storageopts "github.com/kart-io/okr-assistant/pkg/options/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// envelope mirrors pkg/response.Response for decoding.
type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

// lengthEmbedder maps text to a tiny vector; retrieval order is irrelevant here.
type lengthEmbedder struct{}

func (lengthEmbedder) Name() string { return "length" }

func (e lengthEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedSingle(ctx, t)
	}
	return out, nil
}

func (lengthEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type scriptedStream struct {
	chunks []*llm.Chunk
	err    error
}

// scriptedChat replays replies and streams in order.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []*llm.ChatResponse
	streams  []scriptedStream
	requests []*llm.ChatRequest
}

func (s *scriptedChat) Name() string { return "scripted" }

func (s *scriptedChat) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return &llm.ChatResponse{}, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scriptedChat) ChatStream(_ context.Context, req *llm.ChatRequest) iter.Seq2[*llm.Chunk, error] {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var st scriptedStream
	if len(s.streams) > 0 {
		st = s.streams[0]
		s.streams = s.streams[1:]
	}
	s.mu.Unlock()

	return func(yield func(*llm.Chunk, error) bool) {
		for _, c := range st.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if st.err != nil {
			yield(nil, st.err)
		}
	}
}

type testEnv struct {
	engine *gin.Engine
	store  store.Factory
	chat   *scriptedChat
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	opts := storageopts.NewOptions()
	opts.Driver = storageopts.DriverSQLite
	opts.Path = ":memory:"
	db, err := storage.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	s := store.NewStore(db)
	require.NoError(t, s.AutoMigrate())

	chat := &scriptedChat{}
	embedder := lengthEmbedder{}
	indexer := biz.NewIndexer(s, embedder, nil)
	notifier := biz.NewNotifier(nil, time.Second, indexer)
	suggester := biz.NewSuggester(chat, biz.SuggesterConfig{})

	gw := llm.NewGateway(chat, time.Second)
	sessions := biz.NewSessionRegistry(gw, biz.ChatSessionConfig("", "", biz.DefaultChatTemperature), 0)
	chatSvc := biz.NewChatService(gw, sessions, biz.NewRetriever(embedder, s.Documents()), suggester, biz.DefaultTopK)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery())
	router.Register(engine, router.Handlers{
		Objective: handler.NewObjectiveHandler(biz.NewObjectiveService(s, notifier, suggester)),
		KeyResult: handler.NewKeyResultHandler(biz.NewKeyResultService(s, notifier)),
		Chatbot:   handler.NewChatbotHandler(chatSvc, "X-Conversation-ID", "okr_conversation"),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": handler.PingFunc(func(ctx context.Context) error { return storage.Ping(ctx, db) }),
		}),
		Metrics: metrics.Default().Handler(),
	})

	return &testEnv{engine: engine, store: s, chat: chat}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.serve(newRequest(t, method, path, body))
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type keyResultJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	IsCompleted bool   `json:"isCompleted"`
	ObjectiveID string `json:"objectiveId"`
}

type objectiveJSON struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	KeyResults []keyResultJSON `json:"keyResults"`
}

func (e *testEnv) createObjective(t *testing.T, title string, krs ...map[string]any) objectiveJSON {
	t.Helper()
	if krs == nil {
		krs = []map[string]any{}
	}
	w := e.do(t, http.MethodPost, "/objectives", map[string]any{"title": title, "keyResults": krs})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var obj objectiveJSON
	decodeEnvelope(t, w, &obj)
	return obj
}

func kr(description string, progress int) map[string]any {
	return map[string]any{"description": description, "progress": progress}
}
