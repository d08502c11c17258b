package query

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"mpccoordinator/core/events"
)

const wsWriteTimeout = 10 * time.Second

// Hub fans out coordinator events to live watchers (§6's implicit
// streaming need for `watch`; not a named operation in spec.md's table but
// required for clients that otherwise poll `list_requests`/`get`). It
// implements events.Emitter so wiring can pass it directly to every
// domain component's constructor via events.MultiEmitter.
type Hub struct {
	mu   sync.Mutex
	subs map[chan events.Event]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan events.Event]struct{})}
}

// Emit implements events.Emitter. When a subscriber's buffer is full the
// event is skipped for that subscriber (it stays subscribed) rather than
// blocking the coordinator's single logical actor (§5).
func (h *Hub) Emit(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *Hub) subscribe() (chan events.Event, func()) {
	ch := make(chan events.Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// ServeWatch upgrades the request to a websocket and streams events until
// the client disconnects or the request context ends. Grounded on
// rpc/ws.go's accept/stream/write-timeout shape.
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch, cancel := h.subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

type watchFrame struct {
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(watchFrame{Type: e.EventType(), Data: e})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
