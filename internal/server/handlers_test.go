package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opscore/core/internal/lifecycle"
	"github.com/opscore/core/internal/model"
	"github.com/opscore/core/internal/routing"
	"github.com/opscore/core/internal/store"
	"github.com/opscore/core/internal/workflow"
)

const testAPIKey = "secret-token"

func newTestServer(t *testing.T, routingURL string) (*Server, store.Store, *lifecycle.Manager) {
	t.Helper()
	s := store.NewMemory()
	lc := lifecycle.New(s)
	if routingURL == "" {
		routingURL = "http://127.0.0.1:0"
	}
	rc := routing.New(routingURL, 2*time.Second)
	engine := workflow.New(s, lc, rc, nil)
	srv := New(Config{
		Addr:      "127.0.0.1:0",
		APIKey:    testAPIKey,
		Lifecycle: lc,
		Engine:    engine,
		Bus:       nil,
	})
	return srv, s, lc
}

func authedRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Registration followed by an initial-state read returns UNKNOWN.
func TestScenarioRegistrationThenInitialState(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	router := srv.buildRouter()

	notifyBody, _ := json.Marshal(map[string]interface{}{
		"event_type": "REGISTER",
		"agent_details": map[string]interface{}{
			"agentId":         "a1",
			"agentName":       "Agent One",
			"contactEndpoint": "http://agent/run",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/opscore/internal/agent/notify", bytes.NewReader(notifyBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from registration, got %d: %s", rec.Code, rec.Body.String())
	}

	stateReq := authedRequest(http.MethodGet, "/v1/opscore/agent/a1/state", nil)
	stateRec := httptest.NewRecorder()
	router.ServeHTTP(stateRec, stateReq)
	if stateRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from state read, got %d: %s", stateRec.Code, stateRec.Body.String())
	}

	var state model.AgentStateRecord
	if err := json.Unmarshal(stateRec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.State != model.StateUnknown {
		t.Fatalf("expected initial state UNKNOWN, got %s", state.State)
	}
}

// A state callback updates the agent's reported state.
func TestScenarioStateCallback(t *testing.T) {
	srv, _, lc := newTestServer(t, "")
	router := srv.buildRouter()

	_, err := lc.RegisterAgent(context.Background(), &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://a/run"})
	if err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"agentId": "a1",
		"state":   "idle",
	})
	req := authedRequest(http.MethodPost, "/v1/opscore/agent/a1/state", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from state callback, got %d: %s", rec.Code, rec.Body.String())
	}

	state, err := lc.GetState(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if state.State != model.StateIdle {
		t.Fatalf("expected state idle after callback, got %s", state.State)
	}
}

// Reading state without a bearer token is rejected.
func TestScenarioUnauthorizedStateRead(t *testing.T) {
	srv, _, lc := newTestServer(t, "")
	router := srv.buildRouter()
	_, _ = lc.RegisterAgent(context.Background(), &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://a/run"})

	req := httptest.NewRequest(http.MethodGet, "/v1/opscore/agent/a1/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

// Triggering a workflow with an idle agent dispatches the first task.
func TestScenarioTriggerDispatchesFirstTask(t *testing.T) {
	dispatched := make(chan struct{}, 1)
	routingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispatched <- struct{}{}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer routingServer.Close()

	srv, _, lc := newTestServer(t, routingServer.URL)
	router := srv.buildRouter()

	_, _ = lc.RegisterAgent(context.Background(), &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://a/run"})
	if err := lc.SetState(context.Background(), "a1", model.StateIdle, time.Now(), nil); err != nil {
		t.Fatal(err)
	}

	go srv.engine.Run(context.Background())

	body, _ := json.Marshal(map[string]interface{}{
		"workflowDefinition": map[string]interface{}{
			"name":    "build",
			"version": "1",
			"tasks":   []map[string]interface{}{{"taskName": "compile"}},
		},
	})
	req := authedRequest(http.MethodPost, "/v1/opscore/agent/a1/workflow", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from trigger, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first task to be dispatched")
	}
}

// Triggering against a missing agent returns 404.
func TestScenarioTriggerMissingAgent(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	router := srv.buildRouter()

	body, _ := json.Marshal(map[string]interface{}{
		"workflowDefinition": map[string]interface{}{
			"name":    "build",
			"version": "1",
			"tasks":   []map[string]interface{}{{"taskName": "compile"}},
		},
	})
	req := authedRequest(http.MethodPost, "/v1/opscore/agent/ghost/workflow", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing agent, got %d: %s", rec.Code, rec.Body.String())
	}
}
