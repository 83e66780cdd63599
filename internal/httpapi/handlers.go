package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pixel-battle-backend/internal/clock"
	"github.com/DoyleJ11/pixel-battle-backend/internal/export"
	"github.com/DoyleJ11/pixel-battle-backend/internal/hub"
	"github.com/DoyleJ11/pixel-battle-backend/internal/session"
)

type StatsResponse struct {
	Code      string   `json:"code"`
	Phase     string   `json:"phase"`
	Remaining int      `json:"remaining"`
	Clients   []string `json:"clients"`
	Pixels    int      `json:"pixels"`
	Exports   int      `json:"exports"`
}

type ExportEntry struct {
	Filename  string    `json:"filename"`
	Trigger   string    `json:"trigger"`
	Size      int       `json:"size"`
	Pixels    int       `json:"pixels"`
	CreatedAt time.Time `json:"createdAt"`
}

// replyTimeout bounds how long a handler waits on a session actor.
const replyTimeout = 5 * time.Second

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ListSessions(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []string, 1)
		select {
		case h.Inbox() <- hub.ListSessions{Reply: reply}:
		case <-h.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		var codes []string
		select {
		case codes = <-reply:
		case <-h.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		sort.Strings(codes)
		writeJSON(w, http.StatusOK, struct {
			Sessions []string `json:"sessions"`
		}{Sessions: codes})
	}
}

func Stats(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		reply := make(chan session.View, 1)
		v, ok := ask(w, r, s, session.GetState{Reply: reply}, reply)
		if !ok {
			return
		}
		clients := v.Clients
		if clients == nil {
			clients = []string{}
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Code:      v.Code,
			Phase:     v.Phase.String(),
			Remaining: clock.Seconds(v.Remaining),
			Clients:   clients,
			Pixels:    v.Pixels,
			Exports:   v.Exports,
		})
	}
}

// CanvasPNG renders the live canvas without recording an export.
func CanvasPNG(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		data, err := export.Encode(s.Canvas().Image())
		if err != nil {
			logger.Error("render canvas", zap.String("session", s.Code()), zap.Error(err))
			http.Error(w, "failed to render canvas", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func Exports(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		artifacts, err := s.Exports(r.Context())
		if err != nil {
			logger.Error("list exports", zap.String("session", s.Code()), zap.Error(err))
			http.Error(w, "failed to list exports", http.StatusInternalServerError)
			return
		}
		out := make([]ExportEntry, 0, len(artifacts))
		for _, a := range artifacts {
			out = append(out, ExportEntry{
				Filename:  a.Filename,
				Trigger:   string(a.Trigger),
				Size:      a.Size,
				Pixels:    a.Pixels,
				CreatedAt: a.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Save queues an export; connected clients receive the finalImage event.
func Save(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		if err := s.Send(r.Context(), session.RequestSave{}); err != nil {
			http.Error(w, "session closed", http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func Start(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		reply := make(chan error, 1)
		err, ok := ask(w, r, s, session.Start{Reply: reply}, reply)
		if !ok {
			return
		}
		switch {
		case errors.Is(err, clock.ErrAlreadyStarted), errors.Is(err, clock.ErrEnded):
			http.Error(w, err.Error(), http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func End(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, w, r)
		if s == nil {
			return
		}
		reply := make(chan bool, 1)
		ended, ok := ask(w, r, s, session.End{Reply: reply}, reply)
		if !ok {
			return
		}
		if !ended {
			http.Error(w, "session already ended", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func lookup(h *hub.Hub, w http.ResponseWriter, r *http.Request) *session.Session {
	s := h.Get(r.Context(), chi.URLParam(r, "code"))
	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return s
}

// ask sends m and waits for its reply. On failure it has already written the
// response.
func ask[T any](w http.ResponseWriter, r *http.Request, s *session.Session, m session.Msg, reply chan T) (T, bool) {
	var zero T
	if err := s.Send(r.Context(), m); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return zero, false
	}
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()
	select {
	case v := <-reply:
		return v, true
	case <-s.Done():
		http.Error(w, "session closed", http.StatusGone)
	case <-r.Context().Done():
	case <-timer.C:
		http.Error(w, "session busy", http.StatusServiceUnavailable)
	}
	return zero, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
