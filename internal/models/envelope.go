package models

import "encoding/json"

// Envelope is the wrapper every backend response uses. Message is a string
// on success and either a string or a list of strings on failure.
type Envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    json.RawMessage `json:"message,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ResponseBody is the server-side counterpart of Envelope.
type ResponseBody struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"statusCode"`
	Message    interface{} `json:"message"`
	Data       interface{} `json:"data"`
}
