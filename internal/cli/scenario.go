package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootScope names the runtime root in scenario steps.
const RootScope = "root"

// Scenario is a scripted sequence of writes, registrations and turns run
// against a fresh runtime.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Compiler selects the expression backend: expr (default), cel or js.
	Compiler string `yaml:"compiler,omitempty"`

	// State seeds the root before any step runs.
	State map[string]any `yaml:"state,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step performs exactly one operation on Scope (the root when empty).
type Step struct {
	Scope string `yaml:"scope,omitempty"`

	Set        map[string]any `yaml:"set,omitempty"`
	Delete     string         `yaml:"delete,omitempty"`
	Append     *AppendStep    `yaml:"append,omitempty"`
	Watch      *WatchStep     `yaml:"watch,omitempty"`
	WatchGroup *GroupStep     `yaml:"watch_group,omitempty"`
	Unwatch    string         `yaml:"unwatch,omitempty"`
	On         *OnStep        `yaml:"on,omitempty"`
	Emit       *EventStep     `yaml:"emit,omitempty"`
	Broadcast  *EventStep     `yaml:"broadcast,omitempty"`
	Child      *ChildStep     `yaml:"child,omitempty"`
	Destroy    string         `yaml:"destroy,omitempty"`
	Eval       string         `yaml:"eval,omitempty"`
	Flush      bool           `yaml:"flush,omitempty"`
}

// AppendStep pushes values onto the array under Key.
type AppendStep struct {
	Key    string `yaml:"key"`
	Values []any  `yaml:"values"`
}

// WatchStep registers a watcher recorded under ID.
type WatchStep struct {
	ID   string `yaml:"id"`
	Expr string `yaml:"expr"`
}

// GroupStep registers a watch group recorded under ID.
type GroupStep struct {
	ID    string   `yaml:"id"`
	Exprs []string `yaml:"exprs"`
}

// OnStep registers an event handler recorded under ID.
type OnStep struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// EventStep emits or broadcasts Name with Args.
type EventStep struct {
	Name string `yaml:"name"`
	Args []any  `yaml:"args,omitempty"`
}

// ChildStep derives a new scope called Name from the step scope.
type ChildStep struct {
	Name     string `yaml:"name"`
	Isolated bool   `yaml:"isolated,omitempty"`
}

// LoadScenario reads and parses a scenario file. Unknown fields are rejected
// so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarioFiles lists the .yaml and .yml files under dir in lexical order.
func FindScenarioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	switch s.Compiler {
	case "", "expr", "cel", "js":
	default:
		return fmt.Errorf("unknown compiler %q", s.Compiler)
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	scopes := map[string]bool{RootScope: true}
	ids := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(step, scopes, ids); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func validateStep(step Step, scopes, ids map[string]bool) error {
	ops := step.operations()
	if len(ops) != 1 {
		return fmt.Errorf("exactly one operation is required, got %d (%s)", len(ops), strings.Join(ops, ", "))
	}
	if name := step.scopeName(); !scopes[name] {
		return fmt.Errorf("unknown scope %q", name)
	}

	claim := func(id string) error {
		if id == "" {
			return errors.New("id is required")
		}
		if ids[id] {
			return fmt.Errorf("duplicate id %q", id)
		}
		ids[id] = true
		return nil
	}

	switch {
	case step.Watch != nil:
		if step.Watch.Expr == "" {
			return errors.New("watch expr is required")
		}
		return claim(step.Watch.ID)
	case step.WatchGroup != nil:
		return claim(step.WatchGroup.ID)
	case step.On != nil:
		if step.On.Name == "" {
			return errors.New("event name is required")
		}
		return claim(step.On.ID)
	case step.Unwatch != "":
		if !ids[step.Unwatch] {
			return fmt.Errorf("unknown watch id %q", step.Unwatch)
		}
	case step.Emit != nil && step.Emit.Name == "", step.Broadcast != nil && step.Broadcast.Name == "":
		return errors.New("event name is required")
	case step.Append != nil && step.Append.Key == "":
		return errors.New("append key is required")
	case step.Child != nil:
		if step.Child.Name == "" {
			return errors.New("child name is required")
		}
		if scopes[step.Child.Name] {
			return fmt.Errorf("duplicate scope %q", step.Child.Name)
		}
		scopes[step.Child.Name] = true
	case step.Destroy != "":
		if !scopes[step.Destroy] {
			return fmt.Errorf("unknown scope %q", step.Destroy)
		}
	}
	return nil
}

func (s Step) operations() []string {
	var ops []string
	add := func(set bool, name string) {
		if set {
			ops = append(ops, name)
		}
	}
	add(len(s.Set) > 0, "set")
	add(s.Delete != "", "delete")
	add(s.Append != nil, "append")
	add(s.Watch != nil, "watch")
	add(s.WatchGroup != nil, "watch_group")
	add(s.Unwatch != "", "unwatch")
	add(s.On != nil, "on")
	add(s.Emit != nil, "emit")
	add(s.Broadcast != nil, "broadcast")
	add(s.Child != nil, "child")
	add(s.Destroy != "", "destroy")
	add(s.Eval != "", "eval")
	add(s.Flush, "flush")
	return ops
}

func (s Step) scopeName() string {
	if s.Scope == "" {
		return RootScope
	}
	return s.Scope
}

// expressions lists every expression the step compiles.
func (s Step) expressions() []string {
	switch {
	case s.Watch != nil:
		return []string{s.Watch.Expr}
	case s.WatchGroup != nil:
		return s.WatchGroup.Exprs
	case s.Eval != "":
		return []string{s.Eval}
	}
	return nil
}
