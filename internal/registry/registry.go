package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/pixel-battle-backend/internal/events"
)

var ErrDuplicateName = errors.New("name already taken")
var ErrAlreadyRegistered = errors.New("connection already signed up")
var ErrEmptyName = errors.New("name is empty")

// Client is a signed-up participant. Outbox is owned by the registry once the
// client is registered: it is closed exactly once, by Unregister.
type Client struct {
	ID       string
	Name     string
	Outbox   chan events.Event
	JoinedAt time.Time

	seq uint64
}

type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Client
	byName map[string]*Client
	seq    uint64
}

func New() *Registry {
	return &Registry{
		byID:   make(map[string]*Client),
		byName: make(map[string]*Client),
	}
}

func (r *Registry) Register(c *Client) error {
	if c.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ID]; ok {
		return ErrAlreadyRegistered
	}
	if _, ok := r.byName[c.Name]; ok {
		return ErrDuplicateName
	}
	r.seq++
	c.seq = r.seq
	r.byID[c.ID] = c
	r.byName[c.Name] = c
	return nil
}

// Unregister removes the client with the given connection ID and closes its
// outbox. The bool is true only for the call that removed it.
func (r *Registry) Unregister(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	delete(r.byName, c.Name)
	close(c.Outbox)
	return c, true
}

func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Targets is a snapshot of the registered clients in join order. It is safe
// to iterate while other registrations proceed.
func (r *Registry) Targets() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) Names() []string {
	targets := r.Targets()
	names := make([]string, len(targets))
	for i, c := range targets {
		names[i] = c.Name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Clear unregisters everyone, closing every outbox.
func (r *Registry) Clear() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, len(r.byID))
	for id, c := range r.byID {
		close(c.Outbox)
		delete(r.byID, id)
		delete(r.byName, c.Name)
		out = append(out, c)
	}
	return out
}
