// Package response defines the JSON envelope returned by the CRUD endpoints.
package response

import (
	"net/http"
	"sync"
	"time"

	"github.com/kart-io/okr-assistant/pkg/errors"
)

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// HTTPCode mirrors the HTTP status for clients that only see the body.
	HTTPCode int `json:"http_code,omitempty"`

	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data any `json:"data,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response time in Unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

var pool = sync.Pool{
	New: func() any { return new(Response) },
}

// Acquire returns a zeroed Response from the pool.
func Acquire() *Response {
	return pool.Get().(*Response)
}

// Release resets r and puts it back into the pool.
func Release(r *Response) {
	if r == nil {
		return
	}
	*r = Response{}
	pool.Put(r)
}

// Success creates a successful response with data.
func Success(data any) *Response {
	r := Acquire()
	r.Code = errors.OK.Code
	r.HTTPCode = http.StatusOK
	r.Message = "success"
	r.Data = data
	r.Timestamp = time.Now().UnixMilli()
	return r
}

// Err creates an error response from an Errno using the given language.
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	r := Acquire()
	r.Code = e.Code
	r.HTTPCode = e.HTTPStatus()
	r.Message = e.Message(lang)
	r.Timestamp = time.Now().UnixMilli()
	return r
}

// WithRequestID adds request ID to the response.
func (r *Response) WithRequestID(requestID string) *Response {
	r.RequestID = requestID
	return r
}

// HTTPStatus returns the HTTP status to write.
func (r *Response) HTTPStatus() int {
	if r.HTTPCode != 0 {
		return r.HTTPCode
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
