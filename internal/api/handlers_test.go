package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/room"
	"github.com/podiumhq/podium/backend/internal/store"
	"github.com/podiumhq/podium/backend/internal/ws"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	docs, err := store.Open(filepath.Join(t.TempDir(), "podium.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	rooms := room.NewStore()
	hub := ws.NewHub(rooms, zap.NewNop())
	return New(hub, rooms, docs, zap.NewNop())
}

func TestHealthHandler(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	a := newTestAPI(t)
	a.docs.Put(store.CollectionPolls, "quiz1", []byte(`{}`))

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	a.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["active_rooms"].(float64) != 0 {
		t.Errorf("Expected 0 active rooms, got %v", body["active_rooms"])
	}
	if body["saved_polls"].(float64) != 1 {
		t.Errorf("Expected 1 saved poll, got %v", body["saved_polls"])
	}
}

func TestPollsCRUD(t *testing.T) {
	a := newTestAPI(t)

	// Save.
	req := httptest.NewRequest("POST", "/api/polls/quiz1", strings.NewReader(`{"q":"Pick"}`))
	w := httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Errorf("Expected ok body, got %s", w.Body.String())
	}

	// List is a bare name array.
	req = httptest.NewRequest("GET", "/api/polls", nil)
	w = httptest.NewRecorder()
	a.PollsRouter(w, req)
	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(names) != 1 || names[0] != "quiz1" {
		t.Errorf("Expected [quiz1], got %v", names)
	}

	// Load returns the document verbatim.
	req = httptest.NewRequest("GET", "/api/polls/quiz1", nil)
	w = httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusOK || w.Body.String() != `{"q":"Pick"}` {
		t.Errorf("Expected stored body, got %d %s", w.Code, w.Body.String())
	}

	// Delete.
	req = httptest.NewRequest("DELETE", "/api/polls/quiz1", nil)
	w = httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/polls/quiz1", nil)
	w = httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestPollsRejectBadJSON(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/polls/quiz1", strings.NewReader(`{"q":`))
	w := httptest.NewRecorder()
	a.PollsRouter(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bad json") {
		t.Errorf("Expected bad json error, got %s", w.Body.String())
	}
}

func TestPollsSanitizeName(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/polls/my%20quiz", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	// The stripped name is what got stored.
	names, _ := a.docs.List(store.CollectionPolls)
	if len(names) != 1 || names[0] != "myquiz" {
		t.Errorf("Expected [myquiz], got %v", names)
	}
}

func TestPresentationsHaveNoDelete(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/presentations/deck1", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	a.PresentationsRouter(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("DELETE", "/api/presentations/deck1", nil)
	w = httptest.NewRecorder()
	a.PresentationsRouter(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestListRejectsNonGet(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/polls", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	a.PollsRouter(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestQRHandler(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/qr.png?text=http://example.com/j/demo&size=300", nil)
	w := httptest.NewRecorder()
	a.QRHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	// PNG magic bytes.
	body := w.Body.Bytes()
	if len(body) < 8 || string(body[1:4]) != "PNG" {
		t.Error("Response is not a PNG")
	}
}

func TestQRSVGHandler(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/qr.svg?text=hello&size=300", nil)
	w := httptest.NewRecorder()
	a.QRSVGHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/svg+xml") {
		t.Errorf("Expected image/svg+xml, got %s", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "<svg") || !strings.Contains(body, `width="300"`) {
		t.Errorf("Unexpected SVG body: %.80s", body)
	}
}

func TestQRBorderWidensQuietZone(t *testing.T) {
	a := newTestAPI(t)

	viewBox := func(border string) string {
		req := httptest.NewRequest("GET", "/qr.svg?text=hello&border="+border, nil)
		w := httptest.NewRecorder()
		a.QRSVGHandler(w, req)
		body := w.Body.String()
		start := strings.Index(body, `viewBox="`)
		if start < 0 {
			t.Fatalf("No viewBox in %.80s", body)
		}
		rest := body[start+len(`viewBox="`):]
		return rest[:strings.Index(rest, `"`)]
	}

	narrow := viewBox("2")
	wide := viewBox("16")
	if narrow == wide {
		t.Errorf("Border should change the module grid, got %s for both", narrow)
	}

	// Out-of-range values clamp instead of erroring.
	if got := viewBox("999"); got != wide {
		t.Errorf("Border should clamp to 16, got viewBox %s want %s", got, wide)
	}
}

func TestQRPageEmbedsSVG(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/qr?text=http://example.com/j/demo", nil)
	w := httptest.NewRecorder()
	a.QRPageHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected text/html, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `/qr.svg?text=`) {
		t.Error("Preview page should embed the SVG endpoint")
	}
	if !strings.Contains(body, "http://example.com/j/demo") {
		t.Error("Preview page should echo the payload text")
	}
}

func TestJoinRedirect(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/j/demo", nil)
	w := httptest.NewRecorder()
	a.JoinHandler(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/?room=demo&role=client" {
		t.Errorf("Unexpected redirect target: %s", loc)
	}
}

func TestJoinRedirectDefaults(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest("GET", "/j", nil)
	w := httptest.NewRecorder()
	a.JoinHandler(w, req)

	if loc := w.Header().Get("Location"); loc != "/?room=default&role=client" {
		t.Errorf("Unexpected redirect target: %s", loc)
	}
}
