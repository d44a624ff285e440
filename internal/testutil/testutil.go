// Package testutil holds helpers shared by the HTTP handler and route tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// JSONRequest builds a request carrying payload as its JSON body. A string
// payload is sent verbatim so tests can post malformed bodies. pathValues are
// name/value pairs applied with SetPathValue, as the mux would.
func JSONRequest(t *testing.T, method, target string, payload any, pathValues ...string) *http.Request {
	t.Helper()
	if len(pathValues)%2 != 0 {
		t.Fatalf("path values must be name/value pairs, got %v", pathValues)
	}

	var body []byte
	switch p := payload.(type) {
	case nil:
	case string:
		body = []byte(p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		body = data
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return req
}

func DecodeJSON[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode json %q: %v", body, err)
	}
	return out
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d (body %s)", want, rr.Code, rr.Body.String())
	}
}

// AssertError checks the status and the {"error": message} body every
// handler returns on failure.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	AssertStatus(t, rr, status)
	resp := DecodeJSON[struct {
		Error string `json:"error"`
	}](t, rr.Body.Bytes())
	if resp.Error != message {
		t.Fatalf("expected error %q, got %q", message, resp.Error)
	}
}

func Ptr[T any](v T) *T { return &v }

// RandomUserID returns an opaque user id unique to the test run.
func RandomUserID() string {
	return "user-" + uuid.NewString()[:8]
}
