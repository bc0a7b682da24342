package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"genstudio/internal/logging"
	"genstudio/internal/middleware"
	"genstudio/internal/models"
)

func newHubServer(t *testing.T) (*Hub, *redis.Client, *middleware.JWTAuth, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jwt := middleware.NewJWTAuth("hub-secret", time.Minute)
	hub := NewHub(rdb, jwt, logging.Discard())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return hub, rdb, jwt, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandleWebSocket_Rejects(t *testing.T) {
	_, _, jwt, url := newHubServer(t)
	standard, _ := jwt.GenerateAccessToken(uuid.New(), "s@example.com", models.AccountStandard)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "?token=abc", http.StatusUnauthorized},
		{"standard account", "?token=" + standard, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url+tc.query, nil)
			if err == nil {
				t.Fatal("Expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tc.want {
				t.Errorf("Expected %d, got %v", tc.want, resp)
			}
		})
	}
}

func TestHub_RelaysUserEvents(t *testing.T) {
	hub, rdb, jwt, url := newHubServer(t)
	userID := uuid.New()
	token, _ := jwt.GenerateAccessToken(userID, "ai@bistro.fr", models.AccountAI)

	ws, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(userID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Connections(userID) != 1 {
		t.Fatalf("Expected 1 connection, got %d", hub.Connections(userID))
	}

	// The subscription starts asynchronously, so publish until it lands.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			rdb.Publish(ctx, models.UpdatesChannel(userID), `{"type":"completed"}`)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(data) != `{"type":"completed"}` {
		t.Errorf("Unexpected message %s", data)
	}

	ws.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Connections(userID) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Connections(userID) != 0 {
		t.Error("Expected connection unregistered after close")
	}
}
