package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir reads every *.yaml/*.yml file in dir as a workflow Definition.
// Files that fail to parse or validate are skipped with an error recorded
// against their name rather than aborting the whole load.
func LoadDir(dir string) (map[string]*Definition, map[string]error) {
	defs := map[string]*Definition{}
	errs := map[string]error{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return defs, map[string]error{dir: err}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := loadFile(path)
		if err != nil {
			errs[entry.Name()] = err
			continue
		}
		defs[def.Name] = def
	}
	return defs, errs
}

func loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parse %s: %w", path, err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("workflow: %s is missing a name", path)
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}
