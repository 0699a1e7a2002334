// Package server exposes the sync operations over a small HTTP JSON API,
// the surface the calendar display front end talks to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vtekvtek/caldav-eventsync/caldav"
	"github.com/vtekvtek/caldav-eventsync/ics"
)

// Operation names accepted on the wire.
const (
	OpLookupEvent = "LOOKUP_EVENT"
	OpAddEvent    = "ADD_EVENT"
	OpUpdateEvent = "UPDATE_EVENT"
	OpDeleteEvent = "DELETE_EVENT"
)

// Operations is the sync surface the server dispatches to. *caldav.Syncer
// satisfies it.
type Operations interface {
	Lookup(ctx context.Context, cfg caldav.CalendarConfig, uid, title string) (caldav.LookupResult, error)
	Add(ctx context.Context, cfg caldav.CalendarConfig, rec ics.EventRecord) (caldav.AddResult, error)
	Update(ctx context.Context, cfg caldav.CalendarConfig, rec ics.EventRecord) (caldav.UpdateResult, error)
	Delete(ctx context.Context, cfg caldav.CalendarConfig, uid string) (caldav.DeleteResult, error)
}

// Server routes operation requests to the sync core. Operation failures
// are part of the response body, not HTTP errors: the transport succeeding
// and the operation succeeding are separate questions.
type Server struct {
	ops             Operations
	defaultCalendar *caldav.CalendarConfig
	logger          *slog.Logger
	mux             *http.ServeMux
}

// New constructs a Server. defaultCalendar may be nil, in which case every
// request must carry its own config block.
func New(ops Operations, defaultCalendar *caldav.CalendarConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		ops:             ops,
		defaultCalendar: defaultCalendar,
		logger:          logger,
		mux:             http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/calendar/sync", s.handleSync)
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// syncRequest is one operation request. The event fields sit flat next to
// operation and config, mirroring the front end's payload shape.
type syncRequest struct {
	Operation string                 `json:"operation"`
	Config    *caldav.CalendarConfig `json:"config,omitempty"`
	ics.EventRecord
}

type syncResponse struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	cfg := req.Config
	if cfg == nil {
		cfg = s.defaultCalendar
	}
	if cfg == nil {
		s.writeFailure(w, &caldav.Failure{
			Kind:    caldav.KindCalendarNotFound,
			Message: "request carries no calendar config and no default is configured",
		})
		return
	}

	s.logger.Info("sync request",
		"operation", req.Operation,
		"calendar", cfg.CalendarDisplayName,
		"uid", req.UID)

	result, err := s.dispatch(r.Context(), req, *cfg)
	if err != nil {
		if errors.Is(err, errUnknownOperation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f, ok := caldav.AsFailure(err); ok {
			s.writeFailure(w, f)
			return
		}
		s.writeFailure(w, &caldav.Failure{
			Kind:    caldav.KindNetworkError,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{OK: true, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req syncRequest, cfg caldav.CalendarConfig) (interface{}, error) {
	switch req.Operation {
	case OpLookupEvent:
		return s.ops.Lookup(ctx, cfg, req.UID, req.Title)
	case OpAddEvent:
		return s.ops.Add(ctx, cfg, req.EventRecord)
	case OpUpdateEvent:
		return s.ops.Update(ctx, cfg, req.EventRecord)
	case OpDeleteEvent:
		return s.ops.Delete(ctx, cfg, req.UID)
	}
	return nil, fmt.Errorf("%w %q", errUnknownOperation, req.Operation)
}

var errUnknownOperation = errors.New("unknown operation")

func (s *Server) writeFailure(w http.ResponseWriter, f *caldav.Failure) {
	s.logger.Warn("sync operation failed",
		"kind", string(f.Kind),
		"message", f.Message)
	writeJSON(w, http.StatusOK, syncResponse{
		OK:    false,
		Error: &errorBody{Kind: string(f.Kind), Message: f.Message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
