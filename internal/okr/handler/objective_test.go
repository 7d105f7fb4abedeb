package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/llm"
)

func TestObjectiveCRUD(t *testing.T) {
	env := newTestEnv(t)

	created := env.createObjective(t, "Ship v2", kr("Close 10 bugs", 40), kr("Write docs", 100))
	require.NotEmpty(t, created.ID)
	require.Len(t, created.KeyResults, 2)
	for _, k := range created.KeyResults {
		assert.Equal(t, created.ID, k.ObjectiveID)
		assert.Equal(t, k.Progress == 100, k.IsCompleted)
	}

	w := env.do(t, http.MethodGet, "/objectives", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []objectiveJSON
	env2 := decodeEnvelope(t, w, &list)
	assert.Equal(t, 0, env2.Code)
	assert.NotEmpty(t, env2.RequestID)
	require.Len(t, list, 1)
	assert.Equal(t, "Ship v2", list[0].Title)

	w = env.do(t, http.MethodGet, "/objectives/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got objectiveJSON
	decodeEnvelope(t, w, &got)
	assert.Equal(t, created.ID, got.ID)

	w = env.do(t, http.MethodGet, "/objectives/"+created.ID+"/is-complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completion struct {
		IsCompleted     bool    `json:"isCompleted"`
		AverageProgress float64 `json:"average_progress"`
	}
	decodeEnvelope(t, w, &completion)
	assert.False(t, completion.IsCompleted)
	assert.InDelta(t, 70, completion.AverageProgress, 0.001)

	w = env.do(t, http.MethodPut, "/objectives/"+created.ID, map[string]any{
		"title":      "Ship v2.1",
		"keyResults": []map[string]any{kr("Close 10 bugs", 100)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated objectiveJSON
	decodeEnvelope(t, w, &updated)
	assert.Equal(t, "Ship v2.1", updated.Title)
	require.Len(t, updated.KeyResults, 1)

	w = env.do(t, http.MethodGet, "/objectives/"+created.ID+"/is-complete", nil)
	decodeEnvelope(t, w, &completion)
	assert.True(t, completion.IsCompleted)

	w = env.do(t, http.MethodDelete, "/objectives/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted objectiveJSON
	decodeEnvelope(t, w, &deleted)
	assert.Equal(t, "Ship v2.1", deleted.Title)

	w = env.do(t, http.MethodGet, "/objectives/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	e := decodeEnvelope(t, w, nil)
	assert.Equal(t, errors.ErrObjectiveNotFound.Code, e.Code)
	assert.Equal(t, "Objective with id "+created.ID+" not found", e.Message)
}

func TestObjective_IndexedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	created := env.createObjective(t, "Grow revenue", kr("Sign 5 customers", 20))

	docs, err := env.store.Documents().ListByObjective(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "Grow revenue")

	env.do(t, http.MethodDelete, "/objectives/"+created.ID, nil)
	docs, err = env.store.Documents().ListByObjective(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestObjective_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/objectives/not-a-uuid",
		"/objectives/123/is-complete",
		"/objective/abc/key-results",
		"/key-results/xyz",
	} {
		t.Run(path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			e := decodeEnvelope(t, w, nil)
			assert.Equal(t, errors.ErrInvalidID.Code, e.Code)
		})
	}
}

func TestObjective_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"empty body", "", errors.ErrBadRequest.Code},
		{"malformed json", "{", errors.ErrBadRequest.Code},
		{"missing title", map[string]any{"keyResults": []any{}}, errors.ErrValidationFailed.Code},
		{"blank title", map[string]any{"title": "   ", "keyResults": []any{}}, errors.ErrValidationFailed.Code},
		{"missing key results", map[string]any{"title": "x"}, errors.ErrValidationFailed.Code},
		{"key result without progress", map[string]any{
			"title":      "x",
			"keyResults": []any{map[string]any{"description": "d"}},
		}, errors.ErrValidationFailed.Code},
		{"progress out of range", map[string]any{
			"title":      "x",
			"keyResults": []any{kr("d", 101)},
		}, errors.ErrProgressOutOfRange.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/objectives", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			e := decodeEnvelope(t, w, nil)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}

	w := env.do(t, http.MethodGet, "/objectives", nil)
	var list []objectiveJSON
	decodeEnvelope(t, w, &list)
	assert.Empty(t, list)
}

func TestObjective_CreateWithoutKeyResults(t *testing.T) {
	env := newTestEnv(t)
	created := env.createObjective(t, "Empty plan")
	assert.Empty(t, created.KeyResults)

	w := env.do(t, http.MethodGet, "/objectives/"+created.ID+"/is-complete", nil)
	var completion struct {
		IsCompleted bool `json:"isCompleted"`
	}
	decodeEnvelope(t, w, &completion)
	assert.False(t, completion.IsCompleted)
}

func TestObjective_UpdateDuplicate(t *testing.T) {
	env := newTestEnv(t)
	created := env.createObjective(t, "Same", kr("a", 10), kr("b", 20))

	w := env.do(t, http.MethodPut, "/objectives/"+created.ID, map[string]any{
		"title":      "Same",
		"keyResults": []map[string]any{kr("b", 20), kr("a", 10)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeEnvelope(t, w, nil)
	assert.Equal(t, errors.ErrObjectiveDuplicate.Code, e.Code)
}

func TestObjective_UpdateMissing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/objectives/"+uuid.NewString(), map[string]any{
		"title":      "x",
		"keyResults": []any{},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestObjective_Suggest(t *testing.T) {
	env := newTestEnv(t)
	env.chat.replies = []*llm.ChatResponse{
		{Text: "```json\n{\"title\":\"Improve onboarding\",\"keyResults\":[{\"description\":\"Cut setup to 1 day\",\"progress\":0}]}\n```"},
		{Text: "not json"},
	}

	w := env.do(t, http.MethodPost, "/objectives/ai", map[string]any{"query": "help new users"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var draft struct {
		Title      string `json:"title"`
		KeyResults []struct {
			Description string `json:"description"`
			Progress    int    `json:"progress"`
		} `json:"keyResults"`
	}
	decodeEnvelope(t, w, &draft)
	assert.Equal(t, "Improve onboarding", draft.Title)
	require.Len(t, draft.KeyResults, 1)

	// drafts are never saved
	w = env.do(t, http.MethodGet, "/objectives", nil)
	var list []objectiveJSON
	decodeEnvelope(t, w, &list)
	assert.Empty(t, list)

	w = env.do(t, http.MethodPost, "/objectives/ai", map[string]any{"query": "again"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	e := decodeEnvelope(t, w, nil)
	assert.Equal(t, errors.ErrSuggestionMalformed.Code, e.Code)

	w = env.do(t, http.MethodPost, "/objectives/ai", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestObjective_KeyResultCollection(t *testing.T) {
	env := newTestEnv(t)
	created := env.createObjective(t, "Collection", kr("first", 0))
	base := "/objective/" + created.ID + "/key-results"

	w := env.do(t, http.MethodPost, base, kr("second", 100))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var added keyResultJSON
	decodeEnvelope(t, w, &added)
	assert.Equal(t, created.ID, added.ObjectiveID)
	assert.True(t, added.IsCompleted)

	w = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var krs []keyResultJSON
	decodeEnvelope(t, w, &krs)
	assert.Len(t, krs, 2)

	w = env.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared struct {
		Count int64           `json:"count"`
		Data  []keyResultJSON `json:"data"`
	}
	decodeEnvelope(t, w, &cleared)
	assert.EqualValues(t, 2, cleared.Count)
	assert.Len(t, cleared.Data, 2)

	w = env.do(t, http.MethodGet, base, nil)
	decodeEnvelope(t, w, &krs)
	assert.Empty(t, krs)

	missing := "/objective/" + uuid.NewString() + "/key-results"
	w = env.do(t, http.MethodGet, missing, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, missing, kr("x", 1))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/objectives/"+uuid.NewString()+"/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
