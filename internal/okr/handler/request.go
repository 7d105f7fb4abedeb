// Package handler provides the HTTP handlers of the OKR service.
package handler

import (
	stderrors "errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/pkg/httputils"
	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
	"github.com/kart-io/okr-assistant/pkg/validator"
)

// KeyResultRequest 关键结果请求体。进度范围由业务层校验。
type KeyResultRequest struct {
	Description string `json:"description" validate:"required,notblank"`
	Progress    *int   `json:"progress" validate:"required"`
}

func (r KeyResultRequest) input() biz.KeyResultInput {
	return biz.KeyResultInput{Description: r.Description, Progress: *r.Progress}
}

// ObjectiveRequest 创建或整体替换目标的请求体。
type ObjectiveRequest struct {
	Title      string             `json:"title" validate:"required,notblank"`
	KeyResults []KeyResultRequest `json:"keyResults" validate:"required,dive"`
}

func (r ObjectiveRequest) input() biz.ObjectiveInput {
	in := biz.ObjectiveInput{Title: r.Title, KeyResults: make([]biz.KeyResultInput, 0, len(r.KeyResults))}
	for _, kr := range r.KeyResults {
		in.KeyResults = append(in.KeyResults, kr.input())
	}
	return in
}

// ProgressRequest PATCH /key-results/:id 请求体。
type ProgressRequest struct {
	Progress *int `json:"progress" validate:"required"`
}

// SuggestRequest POST /objectives/ai 请求体。
type SuggestRequest struct {
	Query string `json:"query" validate:"required,notblank"`
}

// ChatRequest POST /chatbot 请求体。
type ChatRequest struct {
	Message string `json:"message" validate:"required,notblank"`
}

// bindJSON decodes the body into req and validates it, with messages in the
// request language.
func bindJSON(c *gin.Context, req any) error {
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.ErrBadRequest.WithMessage("Request body is required")
		}
		return errors.ErrBadRequest.WithMessage("Malformed request body").WithCause(err)
	}
	if verrs := validator.StructWithLang(req, httputils.Lang(c)); verrs != nil {
		msg := verrs.First()
		return errors.ErrValidationFailed.WithMessages(msg, msg)
	}
	return nil
}

// uuidParam returns the named path parameter when it is a UUID.
func uuidParam(c *gin.Context, name string) (string, error) {
	id := c.Param(name)
	if err := uuid.Validate(id); err != nil {
		return "", errors.ErrInvalidID
	}
	return id, nil
}
