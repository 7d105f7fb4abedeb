package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/pkg/httputils"
)

// KeyResultHandler handles the key-result sub-resource.
type KeyResultHandler struct {
	svc *biz.KeyResultService
}

// NewKeyResultHandler creates a new KeyResultHandler.
func NewKeyResultHandler(svc *biz.KeyResultService) *KeyResultHandler {
	return &KeyResultHandler{svc: svc}
}

// Get GET /key-results/:id
func (h *KeyResultHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	kr, err := h.svc.Get(c.Request.Context(), id)
	httputils.WriteResponse(c, err, kr)
}

// Delete DELETE /key-results/:id
func (h *KeyResultHandler) Delete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	kr, err := h.svc.Delete(c.Request.Context(), id)
	httputils.WriteResponse(c, err, kr)
}

// UpdateProgress PATCH /key-results/:id
func (h *KeyResultHandler) UpdateProgress(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	var req ProgressRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	kr, err := h.svc.UpdateProgress(c.Request.Context(), id, *req.Progress)
	httputils.WriteResponse(c, err, kr)
}

// ToggleComplete PATCH /key-results/:id/toggle-complete
func (h *KeyResultHandler) ToggleComplete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	kr, err := h.svc.ToggleComplete(c.Request.Context(), id)
	httputils.WriteResponse(c, err, kr)
}
