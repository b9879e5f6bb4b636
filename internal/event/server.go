// Package event streams provisioning changes to HTTP clients as
// server-sent events.
package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/autoprovision/internal/eventbus"
)

const keepAliveInterval = 30 * time.Second

type Server struct {
	eventBus *eventbus.Bus
}

func NewServer(eventBus *eventbus.Bus) *Server {
	return &Server{eventBus: eventBus}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/events", s.SubscribeEvents)
}

// SubscribeEvents streams events until the client disconnects. The query
// parameters type (repeatable), workspace_id and provider_key filter the
// stream.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	subID, ch := s.eventBus.Subscribe(64)
	defer s.eventBus.Unsubscribe(subID)

	q := r.URL.Query()
	typeFilter := make(map[eventbus.EventType]struct{}, len(q["type"]))
	for _, et := range q["type"] {
		typeFilter[eventbus.EventType(et)] = struct{}{}
	}
	workspaceID := q.Get("workspace_id")
	providerKey := q.Get("provider_key")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[ev.Type]; !match {
					continue
				}
			}
			if workspaceID != "" && ev.WorkspaceID != workspaceID {
				continue
			}
			if providerKey != "" && ev.ProviderKey != providerKey {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.ErrorContext(ctx, "failed to encode event", "event_id", ev.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
