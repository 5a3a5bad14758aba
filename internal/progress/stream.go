package progress

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHandler upgrades HTTP connections to WebSocket and forwards
// every Bus event as a JSON-lines message, an optional external
// consumer transport analogous to the teacher's SSE/WebSocket
// dashboard bus. The core itself never depends on this — it is
// supplied for embedding applications that want a live console/web
// view (§4.10: "the core does not choose a renderer").
type StreamHandler struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler builds a StreamHandler broadcasting bus's events.
func NewStreamHandler(bus *Bus, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or the bus stops.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("progress stream: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for _, e := range h.bus.Recent() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(wireEvent(e)); err != nil {
			return
		}
	}

	for e := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(wireEvent(e)); err != nil {
			return
		}
	}
}

// wireEvent strips zero-value fields from the JSON representation by
// routing through a struct with omitempty tags, keeping the stream
// payload compact for the common progress-only case.
type eventWire struct {
	ID           string  `json:"id"`
	Timestamp    string  `json:"timestamp"`
	Phase        string  `json:"phase"`
	Entity       string  `json:"entity,omitempty"`
	Field        string  `json:"field,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
	Tier         int     `json:"tier,omitempty"`
	Current      int     `json:"current,omitempty"`
	Total        int     `json:"total,omitempty"`
	RPS          float64 `json:"rps,omitempty"`
	Message      string  `json:"message,omitempty"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	Source       string  `json:"source,omitempty"`
	RecordIndex  int     `json:"record_index,omitempty"`
	Code         string  `json:"code,omitempty"`
}

func wireEvent(e Event) eventWire {
	return eventWire{
		ID: e.ID, Timestamp: e.Timestamp.Format(time.RFC3339Nano), Phase: string(e.Phase),
		Entity: e.Entity, Field: e.Field, Relationship: e.Relationship, Tier: e.Tier,
		Current: e.Current, Total: e.Total, RPS: e.RPS, Message: e.Message,
		ErrorKind: e.ErrorKind, Source: e.Source, RecordIndex: e.RecordIndex, Code: e.Code,
	}
}

// MarshalJSON lets a bare Event be JSON-encoded directly, e.g. for a
// non-WebSocket JSON-lines consumer (cmd/recordflow's --json mode).
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent(e))
}
