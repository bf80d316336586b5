// Package workflow implements the workflow engine: template loading, task
// queueing, and the cooperative dispatch loop that drains the queue
// against per-agent readiness state.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
)

// ParseTemplate decodes raw definition bytes as either JSON or YAML,
// autodetecting by syntax the same way the teacher autodetects config
// files by content rather than extension. JSON is tried first since a
// YAML parser will also happily (and wrongly) accept many JSON documents
// as a single flow-style mapping; explicit JSON detection via the
// leading brace avoids that ambiguity.
func ParseTemplate(raw []byte) (*model.WorkflowDefinition, error) {
	trimmed := bytes.TrimSpace(raw)
	var def model.WorkflowDefinition

	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid JSON workflow template", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &def); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid YAML workflow template", err)
		}
	}

	if err := def.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "workflow template validation failed", err)
	}
	log.Printf("[WORKFLOW] parsed template %s", describeTemplate(&def))
	return &def, nil
}

// ParseTemplateMap builds a definition from an already-decoded mapping
// (e.g. a JSON request body unmarshaled by the HTTP layer), covering the
// "parsed mapping" half of the loader's accepted input forms.
func ParseTemplateMap(raw map[string]interface{}) (*model.WorkflowDefinition, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid workflow template mapping", err)
	}
	var def model.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid workflow template mapping", err)
	}
	if err := def.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "workflow template validation failed", err)
	}
	return &def, nil
}

// describeTemplate renders a short identity string for logging.
func describeTemplate(def *model.WorkflowDefinition) string {
	return fmt.Sprintf("%s v%s (%d tasks)", def.Name, def.Version, len(def.Tasks))
}
