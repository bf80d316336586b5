package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opscore/core/internal/eventlog"
	"github.com/opscore/core/internal/lifecycle"
	"github.com/opscore/core/internal/workflow"
)

// Server is the HTTP Surface composition root: router, collaborators,
// and the event-stream hub. Modeled on the teacher's Server struct in
// internal/server/server.go, trimmed to Ops-Core's own dependency bag.
type Server struct {
	httpServer *http.Server

	lifecycle     *lifecycle.Manager
	engine        *workflow.Engine
	bus           *eventlog.Bus
	hub           *hub
	apiKey        string
	webhookSecret string
}

// Config bundles the collaborators and settings New needs.
type Config struct {
	Addr          string
	APIKey        string
	WebhookSecret string
	Lifecycle     *lifecycle.Manager
	Engine        *workflow.Engine
	Bus           *eventlog.Bus
}

// New builds the Server, wires its router, and subscribes the
// event-stream hub to the event bus.
func New(cfg Config) *Server {
	s := &Server{
		lifecycle:     cfg.Lifecycle,
		engine:        cfg.Engine,
		bus:           cfg.Bus,
		hub:           newHub(),
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go s.hub.run()
	if s.bus != nil {
		go s.bridgeBusToHub()
	}

	return s
}

// buildRouter wires the fixed paths from spec.md §4.5, applying the
// error-handler then request-logger middleware pair (outermost first,
// per spec.md §4.6) around the whole router, and the bearer-auth gate
// only around the authenticated subset. Typed errors are mapped by
// writeError inside each handler; the outer error handler turns a
// handler panic into a 500 with the generic body.
func (s *Server) buildRouter() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/v1/opscore/internal/agent/notify", s.handleAgentNotify).Methods(http.MethodPost)

	authed := router.PathPrefix("/v1/opscore").Subrouter()
	authed.Use(bearerAuthMiddleware(s.apiKey))
	authed.HandleFunc("/agent/{agentId}/state", s.handleSetState).Methods(http.MethodPost)
	authed.HandleFunc("/agent/{agentId}/state", s.handleGetState).Methods(http.MethodGet)
	authed.HandleFunc("/agent/{agentId}/workflow", s.handleTriggerWorkflow).Methods(http.MethodPost)
	authed.HandleFunc("/internal/events/stream", s.handleEventStream)

	logged := requestLoggingMiddleware(router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec))
			}
		}()
		logged.ServeHTTP(w, r)
	})
}

func (s *Server) bridgeBusToHub() {
	ch := s.bus.Subscribe("event-stream-hub")
	for evt := range ch {
		s.hub.broadcastEvent(evt)
	}
}

func (s *Server) publish(evt eventlog.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

func (s *Server) publishRegistered(agentID string) {
	s.publish(eventlog.New(eventlog.TypeAgentRegistered, eventlog.PriorityNormal, agentID, "", "", nil))
}

func (s *Server) publishStateChange(agentID, newState string) {
	s.publish(eventlog.New(eventlog.TypeAgentStateChanged, eventlog.PriorityNormal, agentID, "", "", map[string]interface{}{
		"state": newState,
	}))
}

// ListenAndServe starts the HTTP server. Blocks until it stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
