package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/inematds/inemavox/internal/errors"
	"github.com/inematds/inemavox/pkg/jobs"
	"github.com/inematds/inemavox/pkg/notify"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 32
)

// EventsHandler upgrades observers to WebSocket and bridges them onto the
// notification hub.
type EventsHandler struct {
	manager  *jobs.Manager
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewEventsHandler(manager *jobs.Manager, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are local tools and dashboards; the API carries no
			// cookies, so cross-origin reads are harmless.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

// wsSink adapts one WebSocket connection to the hub's Sink interface. Send
// never blocks past the channel buffer: a slow consumer overflows the
// buffer, Send fails, and the hub drops the sink.
type wsSink struct {
	ch     chan notify.Event
	closed chan struct{}
}

func newWSSink() *wsSink {
	return &wsSink{
		ch:     make(chan notify.Event, wsSendBuffer),
		closed: make(chan struct{}),
	}
}

func (s *wsSink) Send(ev notify.Event) error {
	select {
	case <-s.closed:
		return errSinkClosed
	case s.ch <- ev:
		return nil
	default:
		return errSinkSlow
	}
}

var (
	errSinkClosed = &sinkError{"connection closed"}
	errSinkSlow   = &sinkError{"send buffer full"}
)

type sinkError struct{ msg string }

func (e *sinkError) Error() string { return e.msg }

// Serve handles GET /jobs/{id}/events.
func (h *EventsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.manager.Get(id)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.String("job_id", id), zap.Error(err))
		return
	}

	sink := newWSSink()
	h.manager.Hub().Subscribe(id, sink)
	h.log.Debug("observer connected", zap.String("job_id", id))

	defer func() {
		h.manager.Hub().Unsubscribe(id, sink)
		close(sink.closed)
		_ = conn.Close()
		h.log.Debug("observer disconnected", zap.String("job_id", id))
	}()

	// Greet with the current snapshot so the observer does not have to wait
	// for the next transition.
	if err := h.write(conn, notify.Event{Event: notify.EventConnected, Job: snap}); err != nil {
		return
	}

	// Reader: client messages are treated as pings.
	pings := make(chan struct{}, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-pings:
			if err := h.write(conn, notify.Event{Event: notify.EventPong}); err != nil {
				return
			}
		case ev := <-sink.ch:
			if err := h.write(conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(conn *websocket.Conn, ev notify.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(ev)
}
