package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/arborworks/arbor/internal/brain"
	"github.com/arborworks/arbor/internal/config"
	"github.com/arborworks/arbor/internal/conversation"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/visit"
)

// Server bridges the installation's sensor hardware and monitoring tools to
// the conversation loop. The zone and button endpoints are called by the
// sensor bridge; the rest are for operators.
type Server struct {
	cfg      config.Config
	orch     *conversation.Orchestrator
	gen      *brain.Generator
	visits   *visit.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, orch *conversation.Orchestrator, gen *brain.Generator, visits *visit.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		orch:    orch,
		gen:     gen,
		visits:  visits,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/zone/enter", s.handleZoneEnter)
	r.Post("/v1/zone/exit", s.handleZoneExit)
	r.Post("/v1/button/press", s.handleButtonPress)
	r.Post("/v1/button/release", s.handleButtonRelease)

	r.Get("/v1/state", s.handleState)
	r.Get("/v1/memory", s.handleGetMemory)
	r.Delete("/v1/memory", s.handleClearMemory)
	r.Get("/v1/visits", s.handleVisits)
	r.Get("/v1/events/ws", s.handleEventsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"state":  s.orch.State().String(),
	})
}

func (s *Server) handleZoneEnter(w http.ResponseWriter, _ *http.Request) {
	v := s.visits.Begin()
	s.orch.ZoneEnter()
	s.countEvent("zone_enter")
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleZoneExit(w http.ResponseWriter, _ *http.Request) {
	s.orch.ZoneExit()
	s.countEvent("zone_exit")
	if v, ok := s.visits.End(); ok {
		respondJSON(w, http.StatusOK, v)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "no_active_visit"})
}

func (s *Server) handleButtonPress(w http.ResponseWriter, _ *http.Request) {
	s.orch.ButtonPress()
	s.visits.Touch()
	s.countEvent("button_press")
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (s *Server) handleButtonRelease(w http.ResponseWriter, _ *http.Request) {
	s.orch.ButtonRelease()
	s.countEvent("button_release")
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"state": s.orch.State().String()}
	if v, ok := s.visits.Current(); ok {
		out["visit"] = v
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.gen.Memory().Snapshot())
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.gen.Memory().Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleVisits(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"recent": s.visits.Recent()}
	if v, ok := s.visits.Current(); ok {
		out["current"] = v
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancelSub := s.orch.Notifier().Subscribe()
	defer cancelSub()

	// Reader exists only to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 20)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hello := conversation.Event{Type: "state", To: s.orch.State().String(), Time: time.Now()}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) countEvent(name string) {
	if s.metrics != nil {
		s.metrics.Events.WithLabelValues(name).Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
