package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/realtime"
)

func newWSServer(t *testing.T, users *mockUserService, engine *mockEngine, opts WSOptions) (*httptest.Server, *realtime.Registry) {
	t.Helper()
	logger := logging.New().SetOutput(&bytes.Buffer{})
	registry := realtime.NewRegistry(logger)
	ws := NewWSHandler(users, registry, engine, opts, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /{$}", UpgradeOr(ws, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	})))

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})
	return srv, registry
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

func TestWSHandler_ConnectSyncAndPing(t *testing.T) {
	lat, lon := 40.7128, -74.0060
	engine := &mockEngine{
		SnapshotFunc: func(ctx context.Context, userID string) ([]models.DisclosedLocation, error) {
			return []models.DisclosedLocation{{UserID: "bob", Name: "Bob", PrivacyLevel: models.PrivacyCity, Latitude: &lat, Longitude: &lon}}, nil
		},
	}
	srv, registry := newWSServer(t, &mockUserService{GetUserFunc: knownUser("alice", "Alice", models.PrivacyCity)}, engine, WSOptions{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=alice"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	connected := readFrame(t, conn)
	if connected["type"] != "connected" || connected["userId"] != "alice" {
		t.Fatalf("unexpected first frame %v", connected)
	}
	sync := readFrame(t, conn)
	friends, ok := sync["friends"].([]interface{})
	if sync["type"] != "sync" || !ok || len(friends) != 1 {
		t.Fatalf("unexpected sync frame %v", sync)
	}
	if !registry.IsOnline("alice") {
		t.Fatal("expected alice registered")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if pong := readFrame(t, conn); pong["type"] != "pong" {
		t.Fatalf("expected pong, got %v", pong)
	}
}

func TestWSHandler_LocationUpdateReachesEngine(t *testing.T) {
	got := make(chan models.LocationUpdate, 1)
	engine := &mockEngine{
		PublishLocationFunc: func(ctx context.Context, userID string, update models.LocationUpdate) (realtime.MulticastResult, error) {
			got <- update
			return realtime.MulticastResult{}, nil
		},
	}
	srv, _ := newWSServer(t, &mockUserService{GetUserFunc: knownUser("alice", "Alice", models.PrivacyCity)}, engine, WSOptions{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=alice"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn)
	readFrame(t, conn)

	msg := `{"type":"location_update","latitude":51.5,"longitude":-0.12,"city":"London","country":"UK"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case update := <-got:
		if update.Latitude != 51.5 || update.City != "London" {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("location update never reached the engine")
	}
}

func TestWSHandler_RootURLUpgrades(t *testing.T) {
	srv, _ := newWSServer(t, &mockUserService{GetUserFunc: knownUser("alice", "Alice", models.PrivacyCity)}, &mockEngine{}, WSOptions{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/?userId=alice"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if frame := readFrame(t, conn); frame["type"] != "connected" {
		t.Fatalf("unexpected frame %v", frame)
	}

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected plain GET / to be served normally, got %d", resp.StatusCode)
	}
}

func TestWSHandler_RefusesHandshake(t *testing.T) {
	srv, registry := newWSServer(t, &mockUserService{GetUserFunc: knownUser("alice", "Alice", models.PrivacyCity)}, &mockEngine{}, WSOptions{})

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "missing user id", path: "/ws", status: http.StatusBadRequest},
		{name: "blank user id", path: "/ws?userId=%20", status: http.StatusBadRequest},
		{name: "unknown user", path: "/ws?userId=ghost", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), nil)
			if err == nil {
				t.Fatal("expected handshake to be refused")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %+v", tt.status, resp)
			}
		})
	}
	if registry.Count() != 0 {
		t.Fatalf("expected no registered connections, got %d", registry.Count())
	}
}

func TestWSHandler_OriginCheck(t *testing.T) {
	opts := WSOptions{AllowedOrigins: []string{"https://app.example/"}}
	srv, _ := newWSServer(t, &mockUserService{GetUserFunc: knownUser("alice", "Alice", models.PrivacyCity)}, &mockEngine{}, opts)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=alice"), header)
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed origin, got err=%v resp=%+v", err, resp)
	}

	header.Set("Origin", "https://APP.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?userId=alice"), header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	check := originChecker(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	if !check(req) {
		t.Fatal("expected any origin allowed when list is empty")
	}

	check = originChecker([]string{"https://app.example"})
	req.Header.Set("Origin", "not a url")
	if check(req) {
		t.Fatal("expected malformed origin rejected")
	}
	req.Header.Del("Origin")
	if !check(req) {
		t.Fatal("expected missing origin allowed")
	}
}
