package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/room"
	"github.com/podiumhq/podium/backend/internal/store"
	"github.com/podiumhq/podium/backend/internal/ws"
)

const maxDocumentBytes = 1 << 20

type API struct {
	hub    *ws.Hub
	rooms  *room.Store
	docs   *store.Store
	logger *zap.Logger
}

func New(hub *ws.Hub, rooms *room.Store, docs *store.Store, logger *zap.Logger) *API {
	return &API{hub: hub, rooms: rooms, docs: docs, logger: logger}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Too late for a status change; nothing else to do.
		_ = err
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type roomStats struct {
	Peers int        `json:"peers"`
	Poll  *pollStats `json:"poll,omitempty"`
}

type pollStats struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Left    int    `json:"left"`
	Answers int    `json:"answers"`
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	active := a.hub.GetActiveRooms()

	rooms := make(map[string]roomStats, len(active))
	for key, peers := range active {
		entry := roomStats{Peers: peers}
		if st := a.rooms.Peek(key); st != nil {
			if status, ok := st.PollStatus(); ok {
				entry.Poll = &pollStats{
					ID:      status.Poll.ID,
					State:   status.State.String(),
					Left:    status.Left,
					Answers: status.Answers,
				}
			}
		}
		rooms[key] = entry
	}

	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"rooms":          rooms,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.docs != nil {
		if saved, err := a.docs.Count(store.CollectionPolls); err == nil {
			stats["saved_polls"] = saved
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Document APIs. Bodies and status codes mirror the host UI's expectations:
// lists are bare name arrays, gets return the stored document verbatim,
// writes answer {"ok":true}.

func (a *API) PollsRouter(w http.ResponseWriter, r *http.Request) {
	a.documentsRouter(w, r, "/api/polls", store.CollectionPolls, true)
}

// Presentations have no delete; the host UI only saves and loads them.
func (a *API) PresentationsRouter(w http.ResponseWriter, r *http.Request) {
	a.documentsRouter(w, r, "/api/presentations", store.CollectionPresentations, false)
}

func (a *API) documentsRouter(w http.ResponseWriter, r *http.Request, prefix, collection string, allowDelete bool) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")

	if path == "" {
		if r.Method != http.MethodGet {
			errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a.listDocuments(w, collection)
		return
	}

	name := store.SanitizeName(path)
	if name == "" {
		errorResponse(w, http.StatusBadRequest, "invalid name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getDocument(w, collection, name)
	case http.MethodPost:
		a.putDocument(w, r, collection, name)
	case http.MethodDelete:
		if !allowDelete {
			errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a.deleteDocument(w, collection, name)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) listDocuments(w http.ResponseWriter, collection string) {
	names, err := a.docs.List(collection)
	if err != nil {
		a.logger.Error("list documents", zap.String("collection", collection), zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "failed")
		return
	}
	jsonResponse(w, http.StatusOK, names)
}

func (a *API) getDocument(w http.ResponseWriter, collection, name string) {
	body, err := a.docs.Get(collection, name)
	if err != nil {
		a.logger.Error("get document", zap.String("name", name), zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "failed")
		return
	}
	if body == nil {
		errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (a *API) putDocument(w http.ResponseWriter, r *http.Request, collection, name string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := a.docs.Put(collection, name, body); err != nil {
		if err == store.ErrInvalidJSON {
			errorResponse(w, http.StatusBadRequest, "bad json")
			return
		}
		a.logger.Error("put document", zap.String("name", name), zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "write failed")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) deleteDocument(w http.ResponseWriter, collection, name string) {
	existed, err := a.docs.Delete(collection, name)
	if err != nil || !existed {
		if err != nil {
			a.logger.Error("delete document", zap.String("name", name), zap.Error(err))
		}
		errorResponse(w, http.StatusInternalServerError, "delete failed")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// Join QR endpoints. All three share the same parameters:
// text (payload, defaults to the server root), size (pixels, 240..1024),
// ec (error correction L/M/Q/H), border (quiet zone in modules, 2..16).

type qrParams struct {
	text   string
	size   int
	level  qrcode.RecoveryLevel
	border int
}

func parseQRParams(r *http.Request) qrParams {
	text := r.URL.Query().Get("text")
	if text == "" {
		text = "http://" + r.Host + "/"
	}

	level := qrcode.Medium
	switch strings.ToUpper(r.URL.Query().Get("ec")) {
	case "L":
		level = qrcode.Low
	case "Q":
		level = qrcode.High
	case "H":
		level = qrcode.Highest
	}

	return qrParams{
		text:   text,
		size:   clampInt(r.URL.Query().Get("size"), 420, 240, 1024),
		level:  level,
		border: clampInt(r.URL.Query().Get("border"), 4, 2, 16),
	}
}

// modulesFor returns the QR module grid without a quiet zone; the handlers
// draw their own so the border parameter is honored.
func modulesFor(p qrParams) ([][]bool, error) {
	q, err := qrcode.New(p.text, p.level)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	return q.Bitmap(), nil
}

// QRHandler renders PNG: GET /qr.png?text=...&size=420&ec=M&border=4
func (a *API) QRHandler(w http.ResponseWriter, r *http.Request) {
	p := parseQRParams(r)
	modules, err := modulesFor(p)
	if err != nil {
		a.logger.Error("qr encode", zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "failed")
		return
	}

	n := len(modules)
	total := n + 2*p.border
	img := image.NewPaletted(image.Rect(0, 0, p.size, p.size),
		color.Palette{color.White, color.Black})
	for y := 0; y < p.size; y++ {
		my := y*total/p.size - p.border
		for x := 0; x < p.size; x++ {
			mx := x*total/p.size - p.border
			if my >= 0 && my < n && mx >= 0 && mx < n && modules[my][mx] {
				img.SetColorIndex(x, y, 1)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		a.logger.Error("qr render", zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// QRSVGHandler renders SVG, the format the host UI embeds:
// GET /qr.svg?text=...&size=420&ec=M&border=4
func (a *API) QRSVGHandler(w http.ResponseWriter, r *http.Request) {
	p := parseQRParams(r)
	modules, err := modulesFor(p)
	if err != nil {
		a.logger.Error("qr encode", zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "failed")
		return
	}

	total := len(modules) + 2*p.border
	var b strings.Builder
	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		p.size, p.size, total, total)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/><path fill="#000000" d="`)
	for y, row := range modules {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, "M%d %dh1v1h-1z", x+p.border, y+p.border)
			}
		}
	}
	b.WriteString(`"/></svg>`)

	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, b.String())
}

// QRPageHandler is a minimal preview page wrapping the SVG: GET /qr?text=...
func (a *API) QRPageHandler(w http.ResponseWriter, r *http.Request) {
	p := parseQRParams(r)

	ec := "M"
	switch p.level {
	case qrcode.Low:
		ec = "L"
	case qrcode.High:
		ec = "Q"
	case qrcode.Highest:
		ec = "H"
	}

	src := "/qr.svg?text=" + url.QueryEscape(p.text) +
		"&size=" + strconv.Itoa(p.size) +
		"&ec=" + ec +
		"&border=" + strconv.Itoa(p.border)

	page := `<!doctype html><meta charset="utf-8"/><title>QR</title>
<style>body{margin:0;height:100vh;display:grid;place-items:center;background:#0b0f14;color:#e6eef6;font-family:system-ui}
.wrap{background:#0f1520;border:1px solid #1b2635;border-radius:16px;padding:16px}
.mono{font:12px ui-monospace,Menlo,Consolas,monospace;color:#9fb3c6;word-break:break-all;max-width:70ch;text-align:center}</style>
<div class="wrap">
  <img alt="QR" src="` + src + `">
  <div class="mono">` + html.EscapeString(p.text) + `</div>
</div>`

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, page)
}

// JoinHandler is the short URL on the QR code: /j/<ROOM> or /j?room=ROOM
// redirects into the client UI with the room prefilled.
func (a *API) JoinHandler(w http.ResponseWriter, r *http.Request) {
	roomKey := strings.Trim(strings.TrimPrefix(r.URL.Path, "/j"), "/")
	if roomKey == "" {
		roomKey = r.URL.Query().Get("room")
	}
	if decoded, err := url.PathUnescape(roomKey); err == nil {
		roomKey = decoded
	}
	if roomKey == "" {
		roomKey = "default"
	}

	to := "/?room=" + url.QueryEscape(roomKey) + "&role=client"
	http.Redirect(w, r, to, http.StatusFound)
}

func clampInt(raw string, def, min, max int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		v = def
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}
