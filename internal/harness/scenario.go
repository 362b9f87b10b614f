package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a fixture scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the directory of CUE entity declarations.
	// Relative paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Entities are written to the store before any check runs.
	Entities []EntitySeed `yaml:"entities,omitempty"`

	// Checks run in order, each with a fresh session.
	Checks []Check `yaml:"checks"`
}

// EntitySeed is one stored entity.
type EntitySeed struct {
	Type       string              `yaml:"type"`
	ID         string              `yaml:"id"`
	ClientID   string              `yaml:"client_id,omitempty"`
	Attributes map[string]any      `yaml:"attributes,omitempty"`
	BelongsTo  map[string]string   `yaml:"belongs_to,omitempty"`
	HasMany    map[string][]string `yaml:"has_many,omitempty"`
	Deleted    bool                `yaml:"deleted,omitempty"`
	Errors     map[string]any      `yaml:"errors,omitempty"`
}

// Check compares two entities.
type Check struct {
	Name string `yaml:"name"`

	// Left is the entity the diff is computed on.
	Left string `yaml:"left"`

	// Right names the other entity. Exactly one of Right and CopyOf is set.
	Right string `yaml:"right,omitempty"`

	// CopyOf makes the right side a shallow copy of the named entity.
	CopyOf string `yaml:"copy_of,omitempty"`

	// Mutate is applied to the right side before diffing.
	Mutate []Mutation `yaml:"mutate,omitempty"`

	// Follow names belongsTo slots on the left side to resolve.
	Follow []string `yaml:"follow,omitempty"`

	// Equal, when set, is the expected identity comparison.
	Equal *bool `yaml:"equal,omitempty"`

	// Expect lists the expected deltas.
	Expect []string `yaml:"expect"`
}

// Mutation is one write to the right side of a check.
// Exactly one of Set, BelongsTo, Add, Remove and Delete is set.
type Mutation struct {
	Set       string `yaml:"set,omitempty"`
	Value     any    `yaml:"value,omitempty"`
	BelongsTo string `yaml:"belongs_to,omitempty"`
	Add       string `yaml:"add,omitempty"`
	Remove    string `yaml:"remove,omitempty"`
	Ref       string `yaml:"ref,omitempty"`
	Delete    *bool  `yaml:"delete,omitempty"`
}

// Delta kinds accepted in expectations.
const (
	DeltaAttribute = "attr"
	DeltaBelongsTo = "belongsTo"
	DeltaHasMany   = "hasMany"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	if _, err := os.Stat(scenario.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema directory not found: %s", scenario.Schema)
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. The schema path is not resolved.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarioFiles returns the .yaml and .yml files under dir, sorted.
// A non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Checks) == 0 {
		return fmt.Errorf("checks list is required and must be non-empty")
	}

	for i, e := range s.Entities {
		if e.Type == "" || e.ID == "" {
			return fmt.Errorf("entities[%d]: type and id are required", i)
		}
		for name, ref := range e.BelongsTo {
			if _, err := parseRef(ref); err != nil {
				return fmt.Errorf("entities[%d].belongs_to.%s: %w", i, name, err)
			}
		}
		for name, refs := range e.HasMany {
			for j, ref := range refs {
				if _, err := parseRef(ref); err != nil {
					return fmt.Errorf("entities[%d].has_many.%s[%d]: %w", i, name, j, err)
				}
			}
		}
	}

	names := make(map[string]bool)
	for i, c := range s.Checks {
		if err := validateCheck(c); err != nil {
			return fmt.Errorf("checks[%d]: %w", i, err)
		}
		if names[c.Name] {
			return fmt.Errorf("checks[%d]: duplicate check name %q", i, c.Name)
		}
		names[c.Name] = true
	}

	return nil
}

func validateCheck(c Check) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := parseRef(c.Left); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if (c.Right == "") == (c.CopyOf == "") {
		return fmt.Errorf("exactly one of right and copy_of is required")
	}
	other := c.Right
	if other == "" {
		other = c.CopyOf
	}
	if _, err := parseRef(other); err != nil {
		return fmt.Errorf("right: %w", err)
	}

	for i, m := range c.Mutate {
		if err := validateMutation(m); err != nil {
			return fmt.Errorf("mutate[%d]: %w", i, err)
		}
	}

	for i, e := range c.Expect {
		if _, _, err := parseDelta(e); err != nil {
			return fmt.Errorf("expect[%d]: %w", i, err)
		}
	}
	return nil
}

func validateMutation(m Mutation) error {
	ops := 0
	for _, set := range []bool{m.Set != "", m.BelongsTo != "", m.Add != "", m.Remove != "", m.Delete != nil} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return fmt.Errorf("exactly one of set, belongs_to, add, remove and delete is required")
	}

	switch {
	case m.Add != "" || m.Remove != "":
		if _, err := parseRef(m.Ref); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
	case m.BelongsTo != "" && m.Ref != "":
		if _, err := parseRef(m.Ref); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
	}
	return nil
}

// entityRef is a parsed "Type/id" reference.
type entityRef struct {
	Type string
	ID   string
}

func (r entityRef) String() string { return r.Type + "/" + r.ID }

func parseRef(s string) (entityRef, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return entityRef{}, fmt.Errorf("invalid entity reference %q: want Type/id", s)
	}
	return entityRef{Type: typ, ID: id}, nil
}

func parseDelta(s string) (kind, name string, err error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid delta %q: want kind:name", s)
	}
	switch kind {
	case DeltaAttribute, DeltaBelongsTo, DeltaHasMany:
		return kind, name, nil
	default:
		return "", "", fmt.Errorf("invalid delta %q: unknown kind %q", s, kind)
	}
}
