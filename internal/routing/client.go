// Package routing implements the outbound HTTP client that invokes the
// external agent-routing service's dispatch endpoint. Modeled on the
// teacher's Slack webhook notifier: a timeout'd *http.Client, a JSON
// body, and a typed error on anything but a 2xx response.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
)

// DispatchError is raised for any failed dispatch attempt. StatusCode is
// 0 for connection/timeout failures (no response was ever received),
// distinguishing them only in that sense from a non-2xx response.
// Retryable classifies 4xx as a hard failure; the workflow engine passes
// every dispatch failure, 4xx included, to its retry-counting failure
// handler.
type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("routing service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("routing request failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Retryable reports whether the engine should treat this failure as
// transient (5xx or network/timeout) rather than a hard failure (4xx).
func (e *DispatchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// DefaultTimeout is the routing client's default request timeout.
const DefaultTimeout = 30 * time.Second

// Client posts workflow tasks to the routing service.
type Client struct {
	baseURL string
	client  *http.Client
}

// New builds a routing Client targeting baseURL with the given timeout.
// A zero timeout falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type dispatchRequest struct {
	SenderID        string                 `json:"senderId"`
	MessageType     string                 `json:"messageType"`
	Payload         map[string]interface{} `json:"payload"`
	OpscoreSessionID string                `json:"opscore_session_id"`
	OpscoreTaskID    string                `json:"opscore_task_id"`
}

// Dispatch posts task to POST {base}/v1/agents/{agentId}/run. A 2xx
// response is treated as "accepted for dispatch" (asynchronous); any
// other outcome — non-2xx status, connection failure, or timeout —
// returns a *DispatchError carrying the status code where available.
func (c *Client) Dispatch(ctx context.Context, agentID string, task *model.Task) error {
	body := dispatchRequest{
		SenderID:         "opscore",
		MessageType:      "workflow_task",
		Payload:          task.Payload,
		OpscoreSessionID: task.SessionID,
		OpscoreTaskID:    task.TaskID,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return &DispatchError{Err: fmt.Errorf("marshal dispatch body: %w", err)}
	}

	url := fmt.Sprintf("%s/v1/agents/%s/run", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &DispatchError{Err: fmt.Errorf("build dispatch request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &DispatchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DispatchError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Kind satisfies the apperrors taxonomy shape for logging call sites that
// want a stable Kind label without importing the concrete DispatchError
// type.
func Kind() apperrors.Kind { return apperrors.KindTaskDispatchError }
