package realtime

import (
	"errors"
	"sort"
	"sync"
)

var ErrAgentAlreadyConnected = errors.New("agent already connected")

type AgentInfo struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	Queued     int    `json:"queued"`
	Playing    bool   `json:"playing"`
	Buffered   int    `json:"buffered"`
	Utterances int    `json:"tracked_utterances"`
}

// Registry enforces a single client per agent.
type Registry struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentID := c.AgentID()
	if existing, ok := r.clients[agentID]; ok && existing != c {
		return ErrAgentAlreadyConnected
	}

	r.clients[agentID] = c
	return nil
}

func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, agentID)
}

func (r *Registry) Get(agentID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[agentID]
	return c, ok
}

func (r *Registry) IsConnected(agentID string) bool {
	c, ok := r.Get(agentID)
	return ok && c.IsConnected()
}

func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	agents := make([]AgentInfo, 0, len(clients))
	for _, c := range clients {
		agents = append(agents, AgentInfo{
			ID:         c.AgentID(),
			State:      c.ReadyState().String(),
			Connected:  c.IsConnected(),
			Queued:     c.QueueLen(),
			Playing:    c.IsPlaying(),
			Buffered:   c.BufferedAudio(),
			Utterances: c.TrackedUtterances(),
		})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// CloseAll disconnects and removes every registered client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
