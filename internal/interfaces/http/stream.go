package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/backtest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling connects cross-origin
	},
}

const streamWriteTimeout = 10 * time.Second

// StreamHub serves live backtest state transitions over websockets. Each
// client holds its own manager subscription, so a slow client misses
// events instead of stalling preparation or other clients.
type StreamHub struct {
	manager *backtest.Manager
}

// NewStreamHub wires the hub to a backtest manager.
func NewStreamHub(manager *backtest.Manager) *StreamHub {
	return &StreamHub{manager: manager}
}

// Serve handles GET /v1/backtest/stream. After the upgrade the client
// receives a snapshot of every known context, then transitions as they
// happen, until it hangs up.
func (h *StreamHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Backtest stream upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.manager.Subscribe()
	defer cancel()

	// Clients are not expected to send anything; the read loop exists to
	// notice the close handshake. Unsubscribing closes the events channel,
	// which ends the write loop below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for _, c := range h.manager.Contexts() {
		if err := writeEvent(conn, snapshotEvent(c)); err != nil {
			return
		}
	}

	for ev := range events {
		if err := writeEvent(conn, ev); err != nil {
			log.Debug().Err(err).Msg("Backtest stream client dropped")
			return
		}
	}
}

func snapshotEvent(c *backtest.Context) backtest.Event {
	ev := backtest.Event{
		Ticker: c.Ticker,
		State:  c.State(),
		JobID:  c.JobID(),
		At:     time.Now().UTC(),
	}
	if err := c.Err(); err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func writeEvent(conn *websocket.Conn, ev backtest.Event) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(ev)
}

// WatchBacktest feeds the context-state gauge from manager transitions.
// The returned func stops the watcher.
func (m *MetricsRegistry) WatchBacktest(manager *backtest.Manager) func() {
	events, cancel := manager.Subscribe()
	go func() {
		prev := make(map[string]backtest.State)
		for ev := range events {
			m.SetBacktestState(string(prev[ev.Ticker]), string(ev.State))
			prev[ev.Ticker] = ev.State
		}
	}()
	return cancel
}
