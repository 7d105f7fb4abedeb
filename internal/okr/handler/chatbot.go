package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/pkg/httputils"
	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/infra/middleware"
)

const (
	noResponseMessage = "No response from chatbot"
	resetMessage      = "Chat session reset successfully"

	conversationQuery = "conversationId"
)

// ChatbotHandler serves the assistant endpoints. Bodies follow the chat
// client contract ({message}) rather than the CRUD envelope.
type ChatbotHandler struct {
	chat   *biz.ChatService
	header string
	cookie string
}

// NewChatbotHandler creates a ChatbotHandler. header and cookie name where the
// conversation id is read from.
func NewChatbotHandler(chat *biz.ChatService, header, cookie string) *ChatbotHandler {
	return &ChatbotHandler{chat: chat, header: header, cookie: cookie}
}

// conversationID resolves the conversation from the header, the query string,
// then the cookie.
func (h *ChatbotHandler) conversationID(c *gin.Context) string {
	if h.header != "" {
		if id := strings.TrimSpace(c.GetHeader(h.header)); id != "" {
			return id
		}
	}
	if id := strings.TrimSpace(c.Query(conversationQuery)); id != "" {
		return id
	}
	if h.cookie != "" {
		if id, err := c.Cookie(h.cookie); err == nil && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return biz.DefaultConversationID
}

func (h *ChatbotHandler) echoConversation(c *gin.Context, id string) {
	if h.header != "" {
		c.Header(h.header, id)
	}
}

// Chat POST /chatbot
func (h *ChatbotHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := bindJSON(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}

	id := h.conversationID(c)
	h.echoConversation(c, id)

	reply, err := h.chat.Handle(c.Request.Context(), id, req.Message)
	if err != nil {
		httputils.WriteResponse(c, chatError(err), nil)
		return
	}
	if reply.Message == "" {
		reply.Message = noResponseMessage
	}
	c.JSON(http.StatusOK, reply)
}

// Reset GET /chatbot/reset
func (h *ChatbotHandler) Reset(c *gin.Context) {
	id := h.conversationID(c)
	h.echoConversation(c, id)
	h.chat.Reset(id)
	c.JSON(http.StatusOK, gin.H{"message": resetMessage})
}

// Stream GET /chatbot/stream?message=...
//
// Each event is data-only: {"text": ...} fragments, one
// {"type": "okr_data", "data": draft} per created draft, then [DONE].
// A failed turn ends with an "error" event instead of [DONE].
func (h *ChatbotHandler) Stream(c *gin.Context) {
	message := c.Query("message")
	if strings.TrimSpace(message) == "" {
		httputils.WriteResponse(c, errors.ErrEmptyMessage, nil)
		return
	}

	id := h.conversationID(c)
	h.echoConversation(c, id)

	sse, err := newSSEWriter(c)
	if err != nil {
		httputils.WriteResponse(c, errors.ErrInternal.WithCause(err), nil)
		return
	}

	ctx := c.Request.Context()
	var writeErr error
	err = h.chat.Stream(ctx, id, message, func(ev biz.StreamEvent) error {
		switch ev.Type {
		case biz.StreamText:
			writeErr = sse.Data(gin.H{"text": ev.Text})
		case biz.StreamOKRData:
			writeErr = sse.Data(gin.H{"type": "okr_data", "data": ev.OKR})
		case biz.StreamDone:
			writeErr = sse.Raw(doneSentinel)
		}
		return writeErr
	})
	if err == nil {
		return
	}

	if writeErr != nil || stderrors.Is(err, context.Canceled) {
		logger.Infow("chat stream closed by client",
			"conversation_id", id,
			"request_id", middleware.GetRequestID(ctx),
		)
		return
	}

	e := chatError(err)
	logger.Warnw("chat stream failed",
		"conversation_id", id,
		"request_id", middleware.GetRequestID(ctx),
		"code", e.Code,
		"error", err.Error(),
	)
	_ = sse.Event("error", gin.H{"code": e.Code, "message": e.Message(httputils.Lang(c))})
}

// chatError keeps typed errors and hides anything else behind ErrChatFailed.
func chatError(err error) *errors.Errno {
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return e
	}
	return errors.ErrChatFailed.WithCause(err)
}
