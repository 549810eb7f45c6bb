package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const (
	// messages kept per remote surface between polls
	maxQueued   = 64
	maxBodySize = 64 << 10
)

// Endpoint lets surfaces living outside the process talk to the hub over
// HTTP. A surface posts wire messages for Dispatch and long-polls for the
// messages broadcast to it. It is registered on first contact.
type Endpoint struct {
	hub  *Hub
	log  *slog.Logger
	wait time.Duration

	mu      sync.Mutex
	remotes map[string]*remote

	server *http.Server
}

// NewEndpoint creates an endpoint whose polls wait up to wait for messages
func NewEndpoint(hub *Hub, wait time.Duration, log *slog.Logger) *Endpoint {
	return &Endpoint{
		hub:     hub,
		log:     log,
		wait:    wait,
		remotes: make(map[string]*remote),
	}
}

// remote queues broadcasts for one out-of-process surface
type remote struct {
	id         string
	unregister func()

	mu    sync.Mutex
	queue []Message
	ready chan struct{}
}

func (r *remote) ID() string { return r.id }

func (r *remote) Handle(ctx context.Context, msg Message) error {
	r.mu.Lock()
	if len(r.queue) == maxQueued {
		r.queue = r.queue[1:]
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	select {
	case r.ready <- struct{}{}:
	default:
	}
	return nil
}

func (r *remote) drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.queue
	r.queue = nil
	return msgs
}

func (e *Endpoint) remote(id string) *remote {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.remotes[id]; ok {
		return r
	}
	r := &remote{id: id, ready: make(chan struct{}, 1)}
	r.unregister = e.hub.Register(r)
	e.remotes[id] = r
	e.log.Info("remote surface connected", "surface", id)
	return r
}

// Close unregisters every remote surface
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.remotes {
		r.unregister()
		delete(e.remotes, id)
	}
}

// Handler returns the endpoint routes
func (e *Endpoint) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/surfaces/{id}/messages", e.handlePost).Methods(http.MethodPost)
	r.HandleFunc("/surfaces/{id}/messages", e.handlePoll).Methods(http.MethodGet)
	r.HandleFunc("/surfaces/{id}", e.handleDisconnect).Methods(http.MethodDelete)
	return r
}

// Start serves until ctx is done
func (e *Endpoint) Start(ctx context.Context, port int) error {
	e.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     e.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	e.log.Info("starting surface endpoint", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (e *Endpoint) handlePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	msg, err := Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e.remote(id)
	err = e.hub.Dispatch(r.Context(), id, msg)
	switch {
	case errors.Is(err, ErrNoOpener):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		e.log.Error("dispatch surface message", "surface", id, "kind", msg.Kind(), "error", err)
		writeError(w, http.StatusInternalServerError, "dispatch failed")
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (e *Endpoint) handlePoll(w http.ResponseWriter, r *http.Request) {
	rm := e.remote(mux.Vars(r)["id"])

	msgs := rm.drain()
	if len(msgs) == 0 {
		timer := time.NewTimer(e.wait)
		defer timer.Stop()
		select {
		case <-rm.ready:
			msgs = rm.drain()
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	out := make([]json.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		data, err := Encode(msg)
		if err != nil {
			e.log.Error("encode surface message", "surface", rm.id, "error", err)
			continue
		}
		out = append(out, data)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (e *Endpoint) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	e.mu.Lock()
	rm, ok := e.remotes[id]
	delete(e.remotes, id)
	e.mu.Unlock()

	if ok {
		rm.unregister()
		e.log.Info("remote surface disconnected", "surface", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
