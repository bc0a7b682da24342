// Package generation submits wizard requests to the backend and follows the
// resulting jobs.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"genstudio/internal/api"
	"genstudio/internal/models"
)

// ErrJobFailed is returned by Wait when the backend gave up on a job.
var ErrJobFailed = errors.New("generation: job failed")

// Event is one update from the job event stream.
type Event struct {
	Type         string
	JobID        string
	Step         int
	StepName     string
	Result       string
	ImageURL     string
	ErrorMessage string
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Type == models.EventCompleted || e.Type == models.EventError
}

type Client struct {
	api    *api.Client
	dialer *websocket.Dialer
	logger logrus.FieldLogger
}

func New(apiClient *api.Client, logger logrus.FieldLogger) *Client {
	return &Client{
		api:    apiClient,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Submit creates a generation job. A reference image given as a local file
// is uploaded first and replaced by its remote URL.
func (c *Client) Submit(ctx context.Context, req models.GenerationRequest) (*models.Job, error) {
	if req.ReferenceImage != "" && !isRemote(req.ReferenceImage) {
		url, err := c.uploadReference(ctx, req.ReferenceImage)
		if err != nil {
			return nil, err
		}
		req.ReferenceImage = url
	}

	resp, err := c.api.Post(ctx, api.PathGenerations, req)
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := resp.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) uploadReference(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("reference image: %w", err)
	}

	resp, err := c.api.Upload(ctx, api.PathGenerationUploads, path)
	if err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("generation: upload returned no url")
	}
	return out.URL, nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.Job, error) {
	resp, err := c.api.Get(ctx, api.GenerationPath(id), nil)
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := resp.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the user's jobs, newest first.
func (c *Client) List(ctx context.Context) ([]models.Job, error) {
	resp, err := c.api.Get(ctx, api.PathGenerations, nil)
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	if err := resp.Decode(&jobs); err != nil && !errors.Is(err, api.ErrNoData) {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) Plans(ctx context.Context) ([]models.Plan, error) {
	resp, err := c.api.Get(ctx, api.PathPlans, nil)
	if err != nil {
		return nil, err
	}

	var plans []models.Plan
	if err := resp.Decode(&plans); err != nil && !errors.Is(err, api.ErrNoData) {
		return nil, err
	}
	return plans, nil
}

// Watch streams events for jobID until a terminal event, a read error or
// ctx ends. The channel is closed when the stream stops.
func (c *Client) Watch(ctx context.Context, jobID string) (<-chan Event, error) {
	token := c.api.CurrentAccessToken(ctx)
	if token == "" {
		return nil, errors.New("generation: no access token for event stream")
	}

	url, err := c.api.EventsURL(token)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	events := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).Debug("event stream closed")
				}
				return
			}

			ev, err := decodeEvent(data)
			if err != nil {
				c.logger.WithError(err).Warn("skipping malformed event")
				continue
			}
			if ev.JobID != jobID {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()

	return events, nil
}

// Wait blocks until the job finishes. Events from the stream are passed to
// onEvent; the job is also polled every interval so a missed event or a
// dead stream only delays the result.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration, onEvent func(Event)) (*models.Job, error) {
	// This also refreshes the session before the websocket handshake.
	job, err := c.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Done() {
		return finished(job)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := c.Watch(watchCtx, jobID)
	if err != nil {
		c.logger.WithError(err).Info("event stream unavailable, polling")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}
			if !ev.Terminal() {
				continue
			}
		case <-ticker.C:
		}

		job, err := c.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return finished(job)
		}
	}
}

func finished(job *models.Job) (*models.Job, error) {
	if job.Status == models.JobFailed {
		msg := "unknown error"
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		return job, fmt.Errorf("%w: %s", ErrJobFailed, msg)
	}
	return job, nil
}

func decodeEvent(data []byte) (Event, error) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, err
	}

	var payload struct {
		JobID        string `json:"jobId"`
		Step         int    `json:"step"`
		StepName     string `json:"stepName"`
		Result       string `json:"result"`
		ImageURL     string `json:"imageUrl"`
		ErrorMessage string `json:"errorMessage"`
	}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return Event{}, err
		}
	}

	return Event{
		Type:         msg.Type,
		JobID:        payload.JobID,
		Step:         payload.Step,
		StepName:     payload.StepName,
		Result:       payload.Result,
		ImageURL:     payload.ImageURL,
		ErrorMessage: payload.ErrorMessage,
	}, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
