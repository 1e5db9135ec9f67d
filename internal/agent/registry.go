// Package agent provides the runtimes that represent employees in meetings.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

// Runtime is an agent as seen by the meeting machinery.
type Runtime interface {
	EmployeeID() string
	Name() string
	Role() string
	// GenerateResponse returns nil without error when the agent stays silent.
	GenerateResponse(ctx context.Context, text string, mc model.MeetingContext) (*model.Message, error)
	ShouldUpdateContext() bool
	JoinMeeting(ctx context.Context, mc model.MeetingContext) error
	LeaveMeeting(ctx context.Context, meetingID string) error
}

// Registry maps employee ids to runtimes. It is read-only once built.
type Registry struct {
	agents map[string]Runtime
	ids    []string
}

// NewRegistry builds a registry. Duplicate ids are rejected.
func NewRegistry(runtimes ...Runtime) (*Registry, error) {
	r := &Registry{agents: make(map[string]Runtime, len(runtimes))}
	for _, rt := range runtimes {
		id := rt.EmployeeID()
		if _, dup := r.agents[id]; dup {
			return nil, fmt.Errorf("duplicate agent %q", id)
		}
		r.agents[id] = rt
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r, nil
}

// RegistryFromRoster creates an EmployeeAgent per roster entry. c may be nil.
func RegistryFromRoster(roster Roster, c llm.Client, log *logger.Logger) (*Registry, error) {
	runtimes := make([]Runtime, 0, len(roster.Employees))
	for _, e := range roster.Employees {
		var opts []EmployeeOption
		if c != nil {
			opts = append(opts, WithLLM(c))
		}
		runtimes = append(runtimes, NewEmployeeAgent(e, roster, log, opts...))
	}
	return NewRegistry(runtimes...)
}

// Get returns the runtime for id.
func (r *Registry) Get(id string) (Runtime, bool) {
	rt, ok := r.agents[id]
	return rt, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.agents[id]
	return ok
}

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Len returns the number of agents.
func (r *Registry) Len() int {
	return len(r.ids)
}
