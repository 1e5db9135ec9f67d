package agent

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/meeting-agents/internal/model"
)

// Task is a unit of work an employee reports on.
type Task struct {
	Key      string         `yaml:"key" json:"key"`
	Title    string         `yaml:"title" json:"title"`
	Priority model.Priority `yaml:"priority" json:"priority"`
	DueDate  *time.Time     `yaml:"due_date,omitempty" json:"due_date,omitempty"`
}

// WorkContext is what an agent knows about its employee's current work.
type WorkContext struct {
	CurrentFocus string   `yaml:"current_focus" json:"current_focus"`
	Availability string   `yaml:"availability" json:"availability"`
	Achievements []string `yaml:"achievements" json:"achievements"`
	ActiveTasks  []Task   `yaml:"active_tasks" json:"active_tasks"`
	Blockers     []Task   `yaml:"blockers" json:"blockers"`
	Deadlines    []Task   `yaml:"deadlines" json:"deadlines"`
}

// Employee is one roster entry.
type Employee struct {
	ID       string      `yaml:"id" json:"id"`
	Name     string      `yaml:"name" json:"name"`
	Role     string      `yaml:"role" json:"role"`
	Email    string      `yaml:"email" json:"email"`
	Projects []string    `yaml:"projects" json:"projects"`
	Context  WorkContext `yaml:"context" json:"context"`
}

// Roster is the set of employees agents can represent.
type Roster struct {
	Employees []Employee `yaml:"employees"`
}

// ParseRoster decodes and validates a roster document.
func ParseRoster(data []byte) (Roster, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Roster{}, fmt.Errorf("roster: document is empty")
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("roster: decode: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

// LoadRoster reads a roster YAML file.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("roster: read %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return Roster{}, fmt.Errorf("roster: %s: %w", path, err)
	}
	return r, nil
}

// Validate checks ids are present and unique.
func (r Roster) Validate() error {
	seen := make(map[string]struct{}, len(r.Employees))
	for i, e := range r.Employees {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return fmt.Errorf("roster: employee %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("roster: duplicate employee id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// WorkContext implements ContextSource from the static roster.
func (r Roster) WorkContext(employeeID string) (WorkContext, bool) {
	for _, e := range r.Employees {
		if e.ID == employeeID {
			return e.Context, true
		}
	}
	return WorkContext{}, false
}
