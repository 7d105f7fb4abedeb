package handler

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

// doneSentinel ends every successful stream.
const doneSentinel = "[DONE]"

var errStreamingUnsupported = stderrors.New("streaming unsupported")

// sseWriter writes server-sent events and flushes after each one.
type sseWriter struct {
	w  gin.ResponseWriter
	rc *http.ResponseController
}

// newSSEWriter sends the event-stream headers and lifts the server write
// deadline, which would otherwise cut long turns.
func newSSEWriter(c *gin.Context) (*sseWriter, error) {
	if _, ok := c.Writer.(http.Flusher); !ok {
		return nil, errStreamingUnsupported
	}
	rc := http.NewResponseController(c.Writer)
	_ = rc.SetWriteDeadline(time.Time{})

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	s := &sseWriter{w: c.Writer, rc: rc}
	return s, s.flush()
}

// Data writes a data-only event with v encoded as JSON.
func (s *sseWriter) Data(v any) error {
	return s.Event("", v)
}

// Raw writes a data-only event with payload verbatim.
func (s *sseWriter) Raw(payload string) error {
	return s.write("", payload)
}

// Event writes a named event with v encoded as JSON.
func (s *sseWriter) Event(name string, v any) error {
	data, err := json.MarshalString(v)
	if err != nil {
		return err
	}
	return s.write(name, data)
}

func (s *sseWriter) write(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	return s.rc.Flush()
}
