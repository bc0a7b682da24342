package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// User-facing fallbacks.
const (
	GenericMessage = "Something went wrong. Please try again."
	NetworkMessage = "Unable to reach the server. Check your connection and try again."
)

// Error is returned for every failed call. Status is 0 when no response was
// received.
type Error struct {
	Status  int
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("api: transport error: %v", e.Err)
		}
		return "api: transport error"
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newStatusError(status int, body []byte) *Error {
	msg := GenericMessage
	if status < http.StatusInternalServerError {
		if extracted, ok := ExtractMessage(body); ok {
			msg = extracted
		}
	}
	return &Error{Status: status, Message: msg, Body: body}
}

func newTransportError(err error) *Error {
	return &Error{Message: NetworkMessage, Err: err}
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the message to show a user for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericMessage
}

// ExtractMessage picks the first message found in an error body, in order:
// a "message" string, the first string of a "message" list, "data.message",
// then "error" (string, or object with a message).
func ExtractMessage(body []byte) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}

	if msg, ok := stringOrFirst(payload["message"]); ok {
		return msg, true
	}

	if raw, ok := payload["data"]; ok {
		var data map[string]json.RawMessage
		if json.Unmarshal(raw, &data) == nil {
			if msg, ok := stringOrFirst(data["message"]); ok {
				return msg, true
			}
		}
	}

	if raw, ok := payload["error"]; ok {
		if msg, ok := asString(raw); ok {
			return msg, true
		}
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			if msg, ok := stringOrFirst(nested["message"]); ok {
				return msg, true
			}
		}
	}

	return "", false
}

func stringOrFirst(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	if s, ok := asString(raw); ok {
		return s, true
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return asString(list[0])
	}
	return "", false
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
