package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/okr-assistant/pkg/errors"
)

func TestKeyResultEndpoints(t *testing.T) {
	env := newTestEnv(t)
	obj := env.createObjective(t, "Quality", kr("Reduce flaky tests", 30))
	id := obj.KeyResults[0].ID
	path := "/key-results/" + id

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got keyResultJSON
	decodeEnvelope(t, w, &got)
	assert.Equal(t, "Reduce flaky tests", got.Description)
	assert.Equal(t, 30, got.Progress)

	t.Run("progress", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, path, map[string]any{"progress": 100})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var k keyResultJSON
		decodeEnvelope(t, w, &k)
		assert.Equal(t, 100, k.Progress)
		assert.True(t, k.IsCompleted)

		w = env.do(t, http.MethodPatch, path, map[string]any{"progress": 55})
		decodeEnvelope(t, w, &k)
		assert.Equal(t, 55, k.Progress)
		assert.False(t, k.IsCompleted)
	})

	t.Run("progress out of range", func(t *testing.T) {
		for _, p := range []int{-1, 101} {
			w := env.do(t, http.MethodPatch, path, map[string]any{"progress": p})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			e := decodeEnvelope(t, w, nil)
			assert.Equal(t, errors.ErrProgressOutOfRange.Code, e.Code)
		}

		w := env.do(t, http.MethodPatch, path, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		e := decodeEnvelope(t, w, nil)
		assert.Equal(t, errors.ErrValidationFailed.Code, e.Code)
	})

	t.Run("toggle", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, path+"/toggle-complete", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var k keyResultJSON
		decodeEnvelope(t, w, &k)
		assert.True(t, k.IsCompleted)
		assert.Equal(t, 100, k.Progress)

		w = env.do(t, http.MethodPatch, path+"/toggle-complete", nil)
		decodeEnvelope(t, w, &k)
		assert.False(t, k.IsCompleted)
		assert.Equal(t, 0, k.Progress)
	})

	t.Run("delete", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var k keyResultJSON
		decodeEnvelope(t, w, &k)
		assert.Equal(t, id, k.ID)

		w = env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		e := decodeEnvelope(t, w, nil)
		assert.Equal(t, errors.ErrKeyResultNotFound.Code, e.Code)
		assert.Equal(t, "KeyResult with id "+id+" not found", e.Message)
	})
}

func TestKeyResult_Missing(t *testing.T) {
	env := newTestEnv(t)
	path := "/key-results/" + uuid.NewString()

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, path, nil},
		{http.MethodDelete, path, nil},
		{http.MethodPatch, path, map[string]any{"progress": 10}},
		{http.MethodPatch, path + "/toggle-complete", nil},
	} {
		w := env.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
	}
}

func TestLocalizedErrorMessage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/key-results/bad", nil)
	e := decodeEnvelope(t, w, nil)
	assert.Equal(t, "Validation failed (uuid is expected)", e.Message)

	req := newRequest(t, http.MethodGet, "/key-results/bad", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	e = decodeEnvelope(t, env.serve(req), nil)
	assert.Equal(t, "ID 必须是 UUID", e.Message)
}
