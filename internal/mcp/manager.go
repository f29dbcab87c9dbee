package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped ServerStatus = "stopped"
	StatusReady   ServerStatus = "ready"
	StatusFailed  ServerStatus = "failed"
)

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
}

// Manager handles MCP server lifecycle and routes tool calls to the right
// server.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	clients  map[string]*Client
	statuses map[string]*ServerState
}

// NewManager creates a manager over the given configuration.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{Servers: make(map[string]ServerConfig)}
	}
	return &Manager{
		config:   cfg,
		clients:  make(map[string]*Client),
		statuses: make(map[string]*ServerState),
	}
}

// StartAll connects every configured server. Individual failures are
// recorded per server; they do not stop the rest.
func (m *Manager) StartAll(ctx context.Context) {
	for _, name := range m.config.ServerNames() {
		m.Start(ctx, name)
	}
}

// Start connects one configured server and records its state.
func (m *Manager) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	serverCfg, ok := m.config.Servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown MCP server: %s", name)
	}
	if state, ok := m.statuses[name]; ok && state.Status == StatusReady {
		m.mu.Unlock()
		return nil
	}
	client := NewClient(name, serverCfg)
	m.clients[name] = client
	m.mu.Unlock()

	err := client.Start(ctx)

	m.mu.Lock()
	state := &ServerState{Name: name, Status: StatusReady}
	if err != nil {
		state.Status = StatusFailed
		state.Error = err
	}
	m.statuses[name] = state
	m.mu.Unlock()
	return err
}

// Stop disconnects one server.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	if state, found := m.statuses[name]; found {
		state.Status = StatusStopped
		state.Error = nil
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return client.Stop()
}

// StopAll disconnects every running server.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.statuses = make(map[string]*ServerState)
	m.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
}

// States returns the current state of all servers, for display.
func (m *Manager) States() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]ServerState, 0, len(m.statuses))
	for _, state := range m.statuses {
		states = append(states, *state)
	}
	return states
}

// AllTools returns all tools from running servers. Tool names are prefixed
// with the server name so two servers can expose the same tool.
func (m *Manager) AllTools() []ToolSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ToolSpec
	for name, state := range m.statuses {
		if state.Status != StatusReady {
			continue
		}
		client, ok := m.clients[name]
		if !ok {
			continue
		}
		for _, tool := range client.Tools() {
			all = append(all, ToolSpec{
				Name:        fmt.Sprintf("%s__%s", name, tool.Name),
				Description: fmt.Sprintf("[%s] %s", name, tool.Description),
				Schema:      tool.Schema,
			})
		}
	}
	return all
}

// CallTool routes a prefixed tool call to its server.
func (m *Manager) CallTool(ctx context.Context, fullName string, args json.RawMessage) (string, error) {
	serverName, toolName := parseToolName(fullName)
	if serverName == "" {
		return "", fmt.Errorf("invalid MCP tool name: %s (expected servername__toolname)", fullName)
	}

	m.mu.RLock()
	state, ok := m.statuses[serverName]
	client := m.clients[serverName]
	m.mu.RUnlock()

	if !ok || state.Status != StatusReady || client == nil {
		return "", fmt.Errorf("MCP server %s is not running", serverName)
	}
	return client.CallTool(ctx, toolName, args)
}

// parseToolName extracts server name and tool name from a prefixed name.
func parseToolName(fullName string) (serverName, toolName string) {
	for i := 0; i < len(fullName)-1; i++ {
		if fullName[i] == '_' && fullName[i+1] == '_' {
			return fullName[:i], fullName[i+2:]
		}
	}
	return "", fullName
}
