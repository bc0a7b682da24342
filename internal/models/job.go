package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is the kind of content a wizard function produces.
type Category string

const (
	CategoryText     Category = "Texte"
	CategoryImage    Category = "Image"
	CategoryDocument Category = "Document"
	CategorySocial   Category = "Social"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryText, CategoryImage, CategoryDocument, CategorySocial:
		return true
	}
	return false
}

// GenerationRequest is what the creation wizard submits.
type GenerationRequest struct {
	Job             string            `json:"job"`
	Function        string            `json:"function"`
	Category        Category          `json:"category"`
	Query           string            `json:"query"`
	Style           string            `json:"style,omitempty"`
	ReferenceImage  string            `json:"referenceImageUrl,omitempty"`
	WorkflowAnswers map[string]string `json:"workflowAnswers,omitempty"`
}

// Job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

type Job struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"userId"`
	Request      GenerationRequest `json:"request"`
	Status       string            `json:"status"`
	Result       string            `json:"result,omitempty"`
	ImageURL     string            `json:"imageUrl,omitempty"`
	RetryCount   int               `json:"retryCount"`
	ErrorMessage *string           `json:"errorMessage"`
	CreatedAt    time.Time         `json:"createdAt"`
	CompletedAt  *time.Time        `json:"completedAt"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

type Plan struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	PriceCents       int    `json:"priceCents"`
	Currency         string `json:"currency"`
	GenerationsLimit int    `json:"generationsLimit"`
}

// WebSocket message types
const (
	EventStatusUpdate = "status_update"
	EventCompleted    = "completed"
	EventError        = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	JobID    uuid.UUID `json:"jobId"`
	Step     int       `json:"step"`
	StepName string    `json:"stepName"`
}

type CompletedEvent struct {
	JobID    uuid.UUID `json:"jobId"`
	Result   string    `json:"result"`
	ImageURL string    `json:"imageUrl,omitempty"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"jobId"`
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `json:"errorMessage"`
}

// UpdatesChannel is the pub/sub channel carrying a user's job events.
func UpdatesChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}
