package model

import (
	"testing"
	"time"
)

func TestAgentRegistrationValidate(t *testing.T) {
	reg := &AgentRegistration{
		AgentID:         "a1",
		AgentName:       "Agent One",
		ContactEndpoint: "http://host/run",
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("expected valid registration, got: %v", err)
	}

	reg.AgentID = ""
	if err := reg.Validate(); err == nil {
		t.Fatal("expected error for missing agentId")
	}
}

func TestIsValidState(t *testing.T) {
	cases := []struct {
		state AgentState
		want  bool
	}{
		{StateUnknown, true},
		{StateIdle, true},
		{StateActive, true},
		{AgentState("bogus"), false},
	}
	for _, c := range cases {
		if got := IsValidState(c.state); got != c.want {
			t.Errorf("IsValidState(%q) = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestWorkflowDefinitionValidate(t *testing.T) {
	def := &WorkflowDefinition{Name: "w", Version: "1"}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for empty tasks")
	}

	def.Tasks = []TaskDescriptor{{TaskName: ""}}
	if err := def.Validate(); err == nil {
		t.Fatal("expected error for task missing taskName")
	}

	def.Tasks = []TaskDescriptor{{TaskName: "build"}}
	if err := def.Validate(); err != nil {
		t.Fatalf("expected valid definition, got: %v", err)
	}
}

func TestWorkflowDefinitionEqual(t *testing.T) {
	a := &WorkflowDefinition{Name: "w", Version: "1", Tasks: []TaskDescriptor{{TaskName: "t1"}}}
	b := &WorkflowDefinition{Name: "w", Version: "1", Tasks: []TaskDescriptor{{TaskName: "t1"}}}
	if !a.Equal(b) {
		t.Fatal("expected identical definitions to be equal")
	}

	c := &WorkflowDefinition{Name: "w", Version: "2", Tasks: []TaskDescriptor{{TaskName: "t1"}}}
	if a.Equal(c) {
		t.Fatal("expected differing version to not be equal")
	}
}

func TestTaskReady(t *testing.T) {
	now := time.Now()

	immediate := &Task{}
	if !immediate.Ready(now) {
		t.Fatal("task with zero NotBefore should always be ready")
	}

	future := &Task{NotBefore: now.Add(time.Hour)}
	if future.Ready(now) {
		t.Fatal("task scheduled in the future should not be ready")
	}

	past := &Task{NotBefore: now.Add(-time.Hour)}
	if !past.Ready(now) {
		t.Fatal("task scheduled in the past should be ready")
	}
}
