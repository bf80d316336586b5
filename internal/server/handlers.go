package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
)

// MaxPayloadSize bounds request bodies to guard against DoS via large
// payloads, matching the teacher's handlers/tasks.go constant.
const MaxPayloadSize = 1 * 1024 * 1024

func limitBody(r *http.Request) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxPayloadSize)
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateCallbackBody struct {
	AgentID   string                 `json:"agentId"`
	Timestamp time.Time              `json:"timestamp"`
	State     string                 `json:"state"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleSetState implements POST /v1/opscore/agent/{agentId}/state.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]
	limitBody(r)

	var body stateCallbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "malformed request body", err))
		return
	}
	if body.AgentID != agentID {
		writeError(w, apperrors.New(apperrors.KindInvalidRequest, "agentId in body must equal path parameter"))
		return
	}
	if body.Timestamp.IsZero() {
		body.Timestamp = time.Now().UTC()
	}

	err := s.lifecycle.SetState(r.Context(), agentID, model.AgentState(body.State), body.Timestamp, body.Details)
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishStateChange(agentID, body.State)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetState implements GET /v1/opscore/agent/{agentId}/state.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	state, err := s.lifecycle.GetState(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if state == nil {
		writeError(w, apperrors.New(apperrors.KindAgentNotFound, agentID))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type workflowTriggerBody struct {
	WorkflowDefinitionID string                     `json:"workflowDefinitionId,omitempty"`
	WorkflowDefinition   *model.WorkflowDefinition  `json:"workflowDefinition,omitempty"`
	InitialPayload       map[string]interface{}     `json:"initialPayload,omitempty"`
}

// handleTriggerWorkflow implements POST /v1/opscore/agent/{agentId}/workflow.
func (s *Server) handleTriggerWorkflow(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]
	limitBody(r)

	var body workflowTriggerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "malformed request body", err))
		return
	}

	hasID := body.WorkflowDefinitionID != ""
	hasInline := body.WorkflowDefinition != nil
	if hasID == hasInline {
		writeError(w, apperrors.New(apperrors.KindInvalidRequest, "exactly one of workflowDefinitionId or workflowDefinition is required"))
		return
	}

	result, err := s.engine.Trigger(r.Context(), agentID, body.WorkflowDefinitionID, body.WorkflowDefinition, body.InitialPayload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":         result.SessionID,
		"workflowId":        result.WorkflowID,
		"enqueuedTaskCount": result.EnqueuedTaskCount,
	})
}

type notifyBody struct {
	EventType     string                    `json:"event_type"`
	AgentDetails  *model.AgentRegistration  `json:"agent_details"`
}

// handleAgentNotify implements POST /v1/opscore/internal/agent/notify.
// Not gated by the API key. When a webhook secret is configured the
// request must present it as a bearer token; otherwise no auth is applied.
func (s *Server) handleAgentNotify(w http.ResponseWriter, r *http.Request) {
	limitBody(r)

	var body notifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "malformed request body", err))
		return
	}
	if s.webhookSecret != "" && !checkBearerToken(r, s.webhookSecret) {
		writeError(w, apperrors.New(apperrors.KindUnauthorized, "missing or invalid webhook secret"))
		return
	}

	switch body.EventType {
	case "REGISTER":
		if body.AgentDetails == nil {
			writeError(w, apperrors.New(apperrors.KindInvalidRequest, "agent_details is required"))
			return
		}
		reg, err := s.lifecycle.RegisterAgent(r.Context(), body.AgentDetails)
		if err != nil {
			writeError(w, err)
			return
		}
		s.publishRegistered(reg.AgentID)
	case "DEREGISTER":
		if body.AgentDetails == nil {
			writeError(w, apperrors.New(apperrors.KindInvalidRequest, "agent_details is required"))
			return
		}
		// Deregistration leaves the registration and history intact for
		// audit purposes; it only records a terminal state transition.
		err := s.lifecycle.SetState(r.Context(), body.AgentDetails.AgentID, model.StateFinished, time.Now().UTC(), nil)
		if err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, apperrors.New(apperrors.KindInvalidRequest, "event_type must be REGISTER or DEREGISTER"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
