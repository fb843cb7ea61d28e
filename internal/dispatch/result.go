package dispatch

import (
	"encoding/json"
	"errors"
)

// ErrUnknownTool is returned when a capability name is not in the table.
var ErrUnknownTool = errors.New("unknown tool")

// ErrorKind classifies why a dispatch did not produce a live payload.
type ErrorKind string

const (
	ErrorKindNone                  ErrorKind = ""
	ErrorKindUnknownTool           ErrorKind = "unknown_tool"
	ErrorKindDownstreamUnavailable ErrorKind = "downstream_unavailable"
)

// Source tells whether a payload came from the server or the fallback table.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Result is the outcome of one dispatch. A fallback result is successful;
// ErrorKind keeps the downstream failure visible to logs and metrics.
type Result struct {
	Tool          string          `json:"tool_name"`
	Server        string          `json:"server,omitempty"`
	Success       bool            `json:"success"`
	Payload       json.RawMessage `json:"result"`
	ErrorKind     ErrorKind       `json:"error_kind,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExecutionTime float64         `json:"execution_time"`
	Source        Source          `json:"source,omitempty"`
}

// Err returns ErrUnknownTool for an unresolved name and nil otherwise.
func (r Result) Err() error {
	if r.ErrorKind == ErrorKindUnknownTool {
		return ErrUnknownTool
	}
	return nil
}

// IsFallback reports whether the payload came from the fallback table.
func (r Result) IsFallback() bool {
	return r.Source == SourceFallback
}

// Field decodes one top-level field of the payload into dst. It reports false
// when the payload is not an object or lacks the field.
func (r Result) Field(name string, dst interface{}) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r.Payload, &obj); err != nil {
		return false
	}
	raw, ok := obj[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// StringField returns a string field of the payload, or "".
func (r Result) StringField(name string) string {
	var s string
	if !r.Field(name, &s) {
		return ""
	}
	return s
}
