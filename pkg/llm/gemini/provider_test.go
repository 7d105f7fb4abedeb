package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 0
	return NewProviderWithConfig(cfg)
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	assert.Error(t, err)

	p, err := NewProvider(map[string]any{
		"api_key":    "k",
		"chat_model": "gemini-x",
		"timeout":    3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
	assert.Equal(t, "gemini-x", p.(*Provider).cfg.ChatModel)
}

func TestProvider_Embed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req batchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 2)
		assert.Equal(t, "models/text-embedding-004", req.Requests[0].Model)

		_, _ = io.WriteString(w, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	})

	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, out)

	empty, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestProvider_ChatWithTools(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "sys", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Tools, 1)
		decl := req.Tools[0].FunctionDeclarations[0]
		assert.Equal(t, "create_okr", decl.Name)
		assert.Equal(t, "OBJECT", decl.Parameters.Type)
		assert.Equal(t, "STRING", decl.Parameters.Properties["query"].Type)
		require.NotNil(t, req.GenerationConfig.Temperature)
		assert.InDelta(t, 0.7, *req.GenerationConfig.Temperature, 1e-9)

		require.Len(t, req.Contents, 3)
		assert.Equal(t, "model", req.Contents[1].Role)
		require.NotNil(t, req.Contents[1].Parts[0].FunctionCall)
		require.NotNil(t, req.Contents[2].Parts[0].FunctionResponse)
		assert.Equal(t, "create_okr", req.Contents[2].Parts[0].FunctionResponse.Name)

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"text":"thinking","thought":true},
			{"text":"Here you go"},
			{"functionCall":{"name":"create_okr","args":{"query":"grow"}}}
		]}}]}`)
	})

	resp, err := p.Chat(context.Background(), &llm.ChatRequest{
		SystemInstruction: "sys",
		Temperature:       llm.Float64(0.7),
		Tools: []llm.Tool{{
			Name: "create_okr",
			Parameters: &llm.Schema{
				Type:       "object",
				Properties: map[string]*llm.Schema{"query": {Type: "string"}},
				Required:   []string{"query"},
			},
		}},
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, FunctionCalls: []llm.FunctionCall{{Name: "create_okr", Args: map[string]any{"query": "x"}}}},
			{Role: llm.RoleTool, FunctionResult: &llm.FunctionResult{Name: "create_okr", Response: map[string]any{"ok": true}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here you go", resp.Text)
	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, "create_okr", resp.FunctionCalls[0].Name)
	assert.Equal(t, "grow", resp.FunctionCalls[0].Args["query"])
}

func TestProvider_ChatJSONMode(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-flash-lite-latest")
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`)
	})

	resp, err := p.Chat(context.Background(), &llm.ChatRequest{
		Model:            "gemini-flash-lite-latest",
		ResponseMIMEType: "application/json",
		Messages:         []llm.Message{{Role: llm.RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}

func TestProvider_ChatErrorStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad"}}`)
	})

	_, err := p.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestProvider_ChatBlockedPrompt(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})

	_, err := p.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestProvider_ChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"create_okr","args":{"query":"q"}}}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo"}]}}]}`,
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\r\n\r\n", e)
			w.(http.Flusher).Flush()
		}
	})

	var text strings.Builder
	var calls []llm.FunctionCall
	for chunk, err := range p.ChatStream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}},
	}) {
		require.NoError(t, err)
		text.WriteString(chunk.Text)
		calls = append(calls, chunk.FunctionCalls...)
	}

	assert.Equal(t, "Hello", text.String())
	require.Len(t, calls, 1)
	assert.Equal(t, "create_okr", calls[0].Name)
}

func TestProvider_ChatStreamHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var got error
	for _, err := range p.ChatStream(context.Background(), &llm.ChatRequest{}) {
		got = err
	}
	require.Error(t, got)
	assert.Contains(t, got.Error(), "500")
}

func TestProvider_ChatStreamMalformedEvent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {not json}\n\n")
	})

	var got error
	for _, err := range p.ChatStream(context.Background(), &llm.ChatRequest{}) {
		got = err
	}
	require.Error(t, got)
}
