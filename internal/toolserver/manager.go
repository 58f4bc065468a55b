package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Manager aggregates the catalogs of all configured tool servers into one
// flat namespace and routes invocations to the owning server.
//
// Name collisions across servers resolve first-writer-wins: the server
// that registered a name first keeps it, and later registrations are
// logged and ignored.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	// clientOrder preserves configuration order so collision resolution
	// is deterministic.
	clientOrder []string

	// owners maps capability name to the owning server id, in
	// first-writer-wins order.
	owners map[string]string

	// order preserves aggregate registration order for catalog listing.
	order []string
}

// NewManager creates a manager for the given server configurations.
// Disabled servers are skipped.
func NewManager(configs []*ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:  logger.With("component", "toolserver"),
		clients: make(map[string]*Client),
		owners:  make(map[string]string),
	}
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		if err := cfg.Validate(); err != nil {
			m.logger.Warn("skipping invalid tool server", "error", err)
			continue
		}
		m.clients[cfg.ID] = NewClient(cfg, logger)
		m.clientOrder = append(m.clientOrder, cfg.ID)
	}
	return m
}

// Start discovers capabilities from every enabled server. A server that
// fails discovery is logged and skipped; it never blocks startup or the
// registration of the others.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.owners = make(map[string]string)
	m.order = nil

	for _, id := range m.clientOrder {
		client := m.clients[id]
		if err := client.Refresh(ctx); err != nil {
			m.logger.Error("tool server discovery failed, skipping",
				"server", id,
				"error", err)
			continue
		}
		for _, cap := range client.Capabilities() {
			if owner, taken := m.owners[cap.Name]; taken {
				m.logger.Warn("capability name collision, keeping first registration",
					"capability", cap.Name,
					"owner", owner,
					"ignored", id)
				continue
			}
			m.owners[cap.Name] = id
			m.order = append(m.order, cap.Name)
		}
		m.logger.Info("registered tool server",
			"server", id,
			"capabilities", len(client.Capabilities()))
	}
	return nil
}

// FindOwner returns the server id owning the named capability.
func (m *Manager) FindOwner(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, found := m.owners[name]
	return id, found
}

// Invoke routes a capability call to its owning server.
func (m *Manager) Invoke(ctx context.Context, name string, arguments json.RawMessage) (*CallResult, error) {
	m.mu.RLock()
	id, found := m.owners[name]
	client := m.clients[id]
	m.mu.RUnlock()

	if !found || client == nil {
		return nil, fmt.Errorf("no tool server owns capability %q", name)
	}
	return client.Invoke(ctx, name, arguments)
}

// Catalog returns every registered capability in aggregate registration
// order, resolving collisions first-writer-wins.
func (m *Manager) Catalog() []Capability {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byName := make(map[string]Capability)
	for _, id := range m.clientOrder {
		client := m.clients[id]
		for _, cap := range client.Capabilities() {
			if m.owners[cap.Name] == id {
				byName[cap.Name] = cap
			}
		}
	}

	out := make([]Capability, 0, len(m.order))
	for _, name := range m.order {
		if cap, found := byName[name]; found {
			out = append(out, cap)
		}
	}
	return out
}

// ServerCount returns the number of enabled servers.
func (m *Manager) ServerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
