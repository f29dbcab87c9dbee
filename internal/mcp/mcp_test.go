package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestLoadConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	content := `{
  "servers": {
    "notes": {"command": "notes-mcp", "args": ["--stdio"]},
    "search": {"type": "http", "url": "http://localhost:8080/mcp"}
  }
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromPath(path)
	if err != nil {
		t.Fatalf("LoadConfigFromPath failed: %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}

	notes := cfg.Servers["notes"]
	if notes.TransportType() != "stdio" || notes.Command != "notes-mcp" {
		t.Errorf("unexpected notes config: %+v", notes)
	}
	search := cfg.Servers["search"]
	if search.TransportType() != "http" || search.URL == "" {
		t.Errorf("unexpected search config: %+v", search)
	}

	names := cfg.ServerNames()
	if len(names) != 2 || names[0] != "notes" || names[1] != "search" {
		t.Errorf("ServerNames = %v", names)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("expected empty config, got %d servers", len(cfg.Servers))
	}
}

func TestServerConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"stdio ok", ServerConfig{Command: "mcp-server"}, false},
		{"http ok", ServerConfig{Type: "http", URL: "http://localhost/mcp"}, false},
		{"stdio missing command", ServerConfig{}, true},
		{"http missing url", ServerConfig{Type: "http"}, true},
		{"http with command", ServerConfig{URL: "http://x", Command: "y"}, true},
	}
	for _, tc := range cases {
		err := tc.config.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestCreateStdioTransportEnv(t *testing.T) {
	client := &Client{
		name: "test",
		config: ServerConfig{
			Command: "echo",
			Args:    []string{"hello"},
			Env:     map[string]string{"CUSTOM_VAR": "custom_value"},
		},
	}

	transport := client.createStdioTransport(context.Background())
	ct, ok := transport.(*sdkmcp.CommandTransport)
	if !ok {
		t.Fatalf("transport is %T, want *CommandTransport", transport)
	}

	hasPath, hasCustom := false, false
	for _, e := range ct.Command.Env {
		if strings.HasPrefix(e, "PATH=") {
			hasPath = true
		}
		if e == "CUSTOM_VAR=custom_value" {
			hasCustom = true
		}
	}
	if !hasPath {
		t.Error("parent PATH not inherited in subprocess env")
	}
	if !hasCustom {
		t.Error("custom env var not set")
	}
}

func TestCreateStdioTransportNoEnvInheritsAll(t *testing.T) {
	client := &Client{
		name:   "test",
		config: ServerConfig{Command: "echo"},
	}

	transport := client.createStdioTransport(context.Background())
	ct := transport.(*sdkmcp.CommandTransport)
	if ct.Command.Env != nil {
		t.Error("expected nil env (full inheritance) when no custom vars")
	}
}

func TestParseToolName(t *testing.T) {
	server, tool := parseToolName("notes__create_note")
	if server != "notes" || tool != "create_note" {
		t.Errorf("got %q/%q", server, tool)
	}

	server, tool = parseToolName("bare")
	if server != "" || tool != "bare" {
		t.Errorf("got %q/%q", server, tool)
	}
}

func TestManagerCallToolUnknownServer(t *testing.T) {
	m := NewManager(&Config{Servers: map[string]ServerConfig{}})
	if _, err := m.CallTool(context.Background(), "ghost__tool", nil); err == nil {
		t.Error("expected error for unknown server")
	}
	if _, err := m.CallTool(context.Background(), "noprefix", nil); err == nil {
		t.Error("expected error for unprefixed name")
	}
}
