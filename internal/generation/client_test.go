package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"genstudio/internal/api"
	"genstudio/internal/logging"
	"genstudio/internal/models"
)

type staticSession struct{ token string }

func (s staticSession) AccessToken(context.Context) (string, error)          { return s.token, nil }
func (s staticSession) RefreshToken(context.Context) (string, error)         { return "", nil }
func (s staticSession) AccountType() string                                   { return models.AccountAI }
func (s staticSession) OnRefreshed(context.Context, models.AuthTokens) error { return nil }
func (s staticSession) OnAuthFailure(context.Context)                         {}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ResponseBody{
		Status:     "success",
		StatusCode: status,
		Message:    "ok",
		Data:       data,
	})
}

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	apiClient := api.New(srv.URL, api.WithSessionProvider(staticSession{token: "tok"}))
	return New(apiClient, logging.Discard())
}

func TestSubmit_UploadsLocalReferenceFirst(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(ref, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}

	var submitted models.GenerationRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/generations/uploads", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("Expected multipart file, got %v", err)
		}
		writeData(w, http.StatusCreated, map[string]string{"url": "http://cdn/ref.png"})
	})
	mux.HandleFunc("/ai/generations", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&submitted)
		writeData(w, http.StatusAccepted, models.Job{ID: uuid.New(), Status: models.JobPending, Request: submitted})
	})

	client := newClient(t, mux)
	job, err := client.Submit(context.Background(), models.GenerationRequest{
		Job:            "Restaurant",
		Function:       "Affiche promotionnelle",
		Category:       models.CategoryImage,
		Query:          "soirée jazz",
		Style:          "Pop art",
		ReferenceImage: ref,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if submitted.ReferenceImage != "http://cdn/ref.png" {
		t.Errorf("Expected uploaded URL submitted, got %q", submitted.ReferenceImage)
	}
	if job.Status != models.JobPending {
		t.Errorf("Expected pending job, got %q", job.Status)
	}
}

func TestSubmit_RemoteReferenceIsNotUploaded(t *testing.T) {
	var uploads int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/generations/uploads", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&uploads, 1)
	})
	mux.HandleFunc("/ai/generations", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusAccepted, models.Job{ID: uuid.New(), Status: models.JobPending})
	})

	client := newClient(t, mux)
	_, err := client.Submit(context.Background(), models.GenerationRequest{
		Job: "Autre", Function: "Image", Category: models.CategoryImage, Query: "q", Style: "3D",
		ReferenceImage: "https://cdn/ref.png",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if atomic.LoadInt32(&uploads) != 0 {
		t.Error("Expected no upload for a remote reference")
	}
}

func TestSubmit_MissingLocalFile(t *testing.T) {
	client := newClient(t, http.NotFoundHandler())
	_, err := client.Submit(context.Background(), models.GenerationRequest{ReferenceImage: "/does/not/exist.png"})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestList_EmptyData(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, nil)
	}))

	jobs, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected no jobs, got %d", len(jobs))
	}
}

func TestWait_FollowsEventStream(t *testing.T) {
	jobID := uuid.New()
	var done atomic.Bool
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ai/generations/"+jobID.String(), func(w http.ResponseWriter, r *http.Request) {
		job := models.Job{ID: jobID, Status: models.JobProcessing}
		if done.Load() {
			job.Status = models.JobCompleted
			job.Result = "Voici votre affiche"
		}
		writeData(w, http.StatusOK, job)
	})
	mux.HandleFunc("/ai/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(models.WSMessage{Type: models.EventStatusUpdate, Payload: models.StatusUpdate{JobID: uuid.New(), Step: 1}})
		conn.WriteJSON(models.WSMessage{Type: models.EventStatusUpdate, Payload: models.StatusUpdate{JobID: jobID, Step: 1, StepName: "Generating"}})
		done.Store(true)
		conn.WriteJSON(models.WSMessage{Type: models.EventCompleted, Payload: models.CompletedEvent{JobID: jobID, Result: "Voici votre affiche"}})
		conn.ReadMessage()
	})

	client := newClient(t, mux)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []Event
	job, err := client.Wait(ctx, jobID.String(), time.Hour, func(ev Event) {
		seen = append(seen, ev)
	})
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if job.Result != "Voici votre affiche" {
		t.Errorf("Unexpected result %q", job.Result)
	}
	if len(seen) != 2 {
		t.Fatalf("Expected 2 events for the job, got %d: %+v", len(seen), seen)
	}
	if seen[0].StepName != "Generating" || !seen[1].Terminal() {
		t.Errorf("Unexpected events %+v", seen)
	}
}

func TestWatch_StreamClosedByServerReleasesGoroutines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	served := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/ws", func(w http.ResponseWriter, r *http.Request) {
		defer close(served)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteJSON(models.WSMessage{Type: models.EventStatusUpdate, Payload: models.StatusUpdate{JobID: uuid.New(), Step: 1}})
		conn.Close()
	})
	client := newClient(t, mux)

	before := runtime.NumGoroutine()
	events, err := client.Watch(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("Expected no events for another job")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the event channel to close when the server hangs up")
	}
	<-served

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("Expected stream goroutines to exit, %d still running (started with %d)", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWait_PollsWithoutStreamAndReportsFailure(t *testing.T) {
	jobID := uuid.New()
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/ai/generations/"+jobID.String(), func(w http.ResponseWriter, r *http.Request) {
		job := models.Job{ID: jobID, Status: models.JobProcessing}
		if atomic.AddInt32(&polls, 1) >= 3 {
			msg := "model overloaded"
			job.Status = models.JobFailed
			job.ErrorMessage = &msg
		}
		writeData(w, http.StatusOK, job)
	})
	mux.HandleFunc("/ai/ws", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no stream", http.StatusServiceUnavailable)
	})

	client := newClient(t, mux)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Wait(ctx, jobID.String(), 10*time.Millisecond, nil)
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Expected ErrJobFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("Expected backend message in error, got %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type":"error","payload":{"jobId":"abc","errorCode":"GENERATION_FAILED","errorMessage":"boom"}}`))
	if err != nil {
		t.Fatalf("decodeEvent failed: %v", err)
	}
	if ev.JobID != "abc" || ev.ErrorMessage != "boom" || !ev.Terminal() {
		t.Errorf("Unexpected event %+v", ev)
	}

	if _, err := decodeEvent([]byte("not json")); err == nil {
		t.Error("Expected error for malformed event")
	}
}
