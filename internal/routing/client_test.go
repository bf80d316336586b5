package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opscore/core/internal/model"
)

func TestDispatchSuccess(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/a1/run" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := New(server.URL, 0)
	task := &model.Task{TaskID: "t1", SessionID: "s1", TaskName: "build", Payload: map[string]interface{}{"x": 1.0}}

	if err := c.Dispatch(context.Background(), "a1", task); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if received["opscore_task_id"] != "t1" {
		t.Errorf("expected opscore_task_id t1, got %v", received["opscore_task_id"])
	}
	if received["senderId"] != "opscore" {
		t.Errorf("expected senderId opscore, got %v", received["senderId"])
	}
}

func TestDispatch4xxIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, 0)
	err := c.Dispatch(context.Background(), "a1", &model.Task{})

	de, ok := err.(*DispatchError)
	if !ok {
		t.Fatalf("expected *DispatchError, got %T", err)
	}
	if de.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", de.StatusCode)
	}
	if de.Retryable() {
		t.Error("expected 4xx to not be retryable")
	}
}

func TestDispatch5xxIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, 0)
	err := c.Dispatch(context.Background(), "a1", &model.Task{})

	de, ok := err.(*DispatchError)
	if !ok {
		t.Fatalf("expected *DispatchError, got %T", err)
	}
	if !de.Retryable() {
		t.Error("expected 5xx to be retryable")
	}
}

func TestDispatchConnectionFailureIsRetryable(t *testing.T) {
	c := New("http://127.0.0.1:0", 0)
	err := c.Dispatch(context.Background(), "a1", &model.Task{})

	de, ok := err.(*DispatchError)
	if !ok {
		t.Fatalf("expected *DispatchError, got %T", err)
	}
	if !de.Retryable() {
		t.Error("expected connection failure to be retryable")
	}
}
