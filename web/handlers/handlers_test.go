package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/engine"
)

func newTestHandler(t *testing.T) (*Handler, *engine.Manager) {
	t.Helper()
	reg := backend.NewRegistry()
	reg.Register("alpha", func() backend.Backend {
		return backend.NewMock(backend.MockConfig{ID: "alpha", Responses: []string{"I agree."}})
	})
	reg.Register("beta", func() backend.Backend {
		return backend.NewMock(backend.MockConfig{ID: "beta", Responses: []string{"I agree as well."}})
	})
	reg.Register("down", func() backend.Backend {
		return backend.NewMock(backend.MockConfig{ID: "down", Unavailable: true})
	})
	reg.SetDefaultRoster("alpha", "beta")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := engine.NewManager(reg, nil, logger)
	return New(manager, reg, nil, logger), manager
}

func createDebate(t *testing.T, router http.Handler, body string) *core.Session {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/debates", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", w.Code, w.Body.String())
	}
	var session core.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}
	return &session
}

func waitForStatus(t *testing.T, router http.Handler, id string, want core.Status) *core.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest("GET", "/api/debates/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("get returned %d: %s", w.Code, w.Body.String())
		}
		var session core.Session
		if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
			t.Fatalf("invalid get response: %v", err)
		}
		if session.Status == want {
			return &session
		}
		if session.Status.Terminal() {
			t.Fatalf("session reached %q (%s), want %q", session.Status, session.StatusReason, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session never reached %q", want)
	return nil
}

func TestCreateAndCompleteDebate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"Should we cache this?"}`)
	if session.ID == "" {
		t.Fatal("missing session ID")
	}
	if len(session.Participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(session.Participants))
	}

	final := waitForStatus(t, router, session.ID, core.StatusComplete)
	if len(final.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(final.Messages))
	}
	if final.Consensus == nil {
		t.Error("completed debate should carry a consensus")
	}
}

func TestCreateDebateValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"MissingQuestion", `{"roster":["alpha","beta"]}`, http.StatusBadRequest},
		{"MalformedJSON", `{"question":`, http.StatusBadRequest},
		{"UnknownBackend", `{"question":"q","roster":["alpha","ghost"]}`, http.StatusUnprocessableEntity},
		{"TooFewAvailable", `{"question":"q","roster":["alpha","down"]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/debates", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestGetDebateNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	req := httptest.NewRequest("GET", "/api/debates/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListBackends(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	req := httptest.NewRequest("GET", "/api/backends", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Backends []backendInfo `json:"backends"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	byID := make(map[string]backendInfo)
	for _, b := range resp.Backends {
		byID[b.ID] = b
	}
	if !byID["alpha"].Available {
		t.Error("alpha should be available")
	}
	if byID["down"].Available {
		t.Error("down should be unavailable")
	}
}

func TestListDebates(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"List me"}`)
	waitForStatus(t, router, session.ID, core.StatusComplete)

	req := httptest.NewRequest("GET", "/api/debates", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Sessions []*core.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(resp.Sessions))
	}
	if resp.Sessions[0].Question != "List me" {
		t.Errorf("question = %q", resp.Sessions[0].Question)
	}
}

func TestActionsOnFinishedDebate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"Quick one"}`)
	waitForStatus(t, router, session.ID, core.StatusComplete)

	for _, tc := range []struct {
		method, path string
		body         string
	}{
		{"POST", "/api/debates/" + session.ID + "/interjections", `{"content":"late","kind":"redirect"}`},
		{"POST", "/api/debates/" + session.ID + "/end", ""},
		{"POST", "/api/debates/" + session.ID + "/cancel", ""},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Errorf("%s %s = %d, want 409", tc.method, tc.path, w.Code)
		}
	}
}

func TestActionsOnUnknownDebate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	for _, path := range []string{
		"/api/debates/nope/end",
		"/api/debates/nope/cancel",
	} {
		req := httptest.NewRequest("POST", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("POST %s = %d, want 404", path, w.Code)
		}
	}
}

func TestExportDebate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"Export me"}`)
	waitForStatus(t, router, session.ID, core.StatusComplete)

	t.Run("Markdown", func(t *testing.T) {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/debates/%s/export/markdown", session.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Header().Get("Content-Disposition"), ".md") {
			t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
		}
		if !strings.Contains(w.Body.String(), "# Export me") {
			t.Error("markdown body missing the question heading")
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/debates/%s/export/docx", session.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestStreamFinishedDebate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"Stream me"}`)
	waitForStatus(t, router, session.ID, core.StatusComplete)

	req := httptest.NewRequest("GET", "/api/debates/"+session.ID+"/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: session") {
		t.Error("stream missing the session snapshot event")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("stream missing the done event")
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}

func TestDeleteRunningDebateConflicts(t *testing.T) {
	h, manager := newTestHandler(t)
	router := h.Router()

	session := createDebate(t, router, `{"question":"Delete me"}`)
	waitForStatus(t, router, session.ID, core.StatusComplete)

	// No store configured, so a finished session has nothing to delete.
	req := httptest.NewRequest("DELETE", "/api/debates/"+session.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	if _, ok := manager.Get(session.ID); !ok {
		t.Error("live session should remain addressable")
	}
}
