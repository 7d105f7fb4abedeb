package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/pkg/httputils"
)

// ObjectiveHandler handles objective HTTP requests.
type ObjectiveHandler struct {
	svc *biz.ObjectiveService
}

// NewObjectiveHandler creates a new ObjectiveHandler.
func NewObjectiveHandler(svc *biz.ObjectiveService) *ObjectiveHandler {
	return &ObjectiveHandler{svc: svc}
}

// List GET /objectives
func (h *ObjectiveHandler) List(c *gin.Context) {
	objs, err := h.svc.List(c.Request.Context())
	httputils.WriteResponse(c, err, objs)
}

// Get GET /objectives/:id
func (h *ObjectiveHandler) Get(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	obj, err := h.svc.Get(c.Request.Context(), id)
	httputils.WriteResponse(c, err, obj)
}

// IsComplete GET /objectives/:id/is-complete
func (h *ObjectiveHandler) IsComplete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	completion, err := h.svc.Completion(c.Request.Context(), id)
	httputils.WriteResponse(c, err, completion)
}

// Create POST /objectives
func (h *ObjectiveHandler) Create(c *gin.Context) {
	var req ObjectiveRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	obj, err := h.svc.Create(c.Request.Context(), req.input())
	httputils.WriteResponse(c, err, obj)
}

// Update PUT /objectives/:id
func (h *ObjectiveHandler) Update(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	var req ObjectiveRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	obj, err := h.svc.Update(c.Request.Context(), id, req.input())
	httputils.WriteResponse(c, err, obj)
}

// Delete DELETE /objectives/:id
func (h *ObjectiveHandler) Delete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	obj, err := h.svc.Delete(c.Request.Context(), id)
	httputils.WriteResponse(c, err, obj)
}

// Suggest POST /objectives/ai drafts an objective without saving it.
func (h *ObjectiveHandler) Suggest(c *gin.Context) {
	var req SuggestRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	draft, err := h.svc.Suggest(c.Request.Context(), req.Query)
	httputils.WriteResponse(c, err, draft)
}

// ListKeyResults GET /objective/:objectiveId/key-results
func (h *ObjectiveHandler) ListKeyResults(c *gin.Context) {
	id, err := uuidParam(c, "objectiveId")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	krs, err := h.svc.ListKeyResults(c.Request.Context(), id)
	httputils.WriteResponse(c, err, krs)
}

// AddKeyResult POST /objective/:objectiveId/key-results
func (h *ObjectiveHandler) AddKeyResult(c *gin.Context) {
	id, err := uuidParam(c, "objectiveId")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	var req KeyResultRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	kr, err := h.svc.AddKeyResult(c.Request.Context(), id, req.input())
	httputils.WriteResponse(c, err, kr)
}

// ClearKeyResults DELETE /objective/:objectiveId/key-results
func (h *ObjectiveHandler) ClearKeyResults(c *gin.Context) {
	id, err := uuidParam(c, "objectiveId")
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	count, removed, err := h.svc.ClearKeyResults(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"count": count, "data": removed})
}
