package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opscore/core/internal/model"
)

// LoadSeedDefinitions reads every file in dir and parses each as a
// workflow template (JSON or YAML, autodetected), for
// OPSCORE_SEED_WORKFLOWS startup seeding. Grounded on the teacher's
// agents.LoadTeamsConfig's plain os.ReadFile-then-unmarshal loader, here
// applied per-file across a directory instead of a single config path.
func LoadSeedDefinitions(dir string) ([]*model.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed workflows directory %s: %w", dir, err)
	}

	var defs []*model.WorkflowDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed workflow %s: %w", path, err)
		}
		def, err := ParseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("parse seed workflow %s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
