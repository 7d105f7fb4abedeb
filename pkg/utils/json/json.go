// Package json is the JSON codec used across the service. It is backed by
// sonic in std-compatible mode; sonic falls back to encoding/json on
// platforms its JIT does not cover.
package json

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

// Decoder reads successive JSON values from a stream.
type Decoder = sonic.Decoder

// Marshal encodes v.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// MarshalString encodes v straight into a string, as SSE frames need.
func MarshalString(v any) (string, error) { return api.MarshalToString(v) }

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) Decoder { return api.NewDecoder(r) }
