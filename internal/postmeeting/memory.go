package postmeeting

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryTickets is a TicketSink that keeps tickets in process.
type MemoryTickets struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	seq     int
}

// NewMemoryTickets creates an empty ticket store.
func NewMemoryTickets() *MemoryTickets {
	return &MemoryTickets{tickets: make(map[string]Ticket)}
}

func (m *MemoryTickets) CreateTicket(_ context.Context, t Ticket) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key := fmt.Sprintf("%s-%d", t.Project, m.seq)
	m.tickets[key] = t
	return key, nil
}

// Get returns the ticket filed under key.
func (m *MemoryTickets) Get(key string) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[key]
	return t, ok
}

// MemoryDocs is a DocSink that keeps pages in process.
type MemoryDocs struct {
	mu    sync.Mutex
	pages map[string]Page
}

// NewMemoryDocs creates an empty page store.
func NewMemoryDocs() *MemoryDocs {
	return &MemoryDocs{pages: make(map[string]Page)}
}

func (m *MemoryDocs) CreatePage(_ context.Context, p Page) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.pages[id] = p
	return id, nil
}

// Get returns the page stored under id.
func (m *MemoryDocs) Get(id string) (Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	return p, ok
}
