package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quillmd/quill/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect configured MCP servers",
	Long: `Inspect the MCP servers configured in mcp.json. "quill mcp" lists
servers; "quill mcp tools" connects to them and lists the tools they
expose (as the assistant will see them, prefixed with the server name).`,
	RunE: runMCPList,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to MCP servers and list their tools",
	RunE:  runMCPTools,
}

func init() {
	mcpCmd.AddCommand(mcpToolsCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPList(cmd *cobra.Command, args []string) error {
	cfg, err := mcp.LoadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		path, _ := mcp.DefaultConfigPath()
		fmt.Printf("No MCP servers configured (%s)\n", path)
		return nil
	}
	for _, name := range cfg.ServerNames() {
		server := cfg.Servers[name]
		switch server.TransportType() {
		case "http":
			fmt.Printf("%-16s http   %s\n", name, server.URL)
		default:
			fmt.Printf("%-16s stdio  %s\n", name, server.Command)
		}
	}
	return nil
}

func runMCPTools(cmd *cobra.Command, args []string) error {
	cfg, err := mcp.LoadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		fmt.Println("No MCP servers configured")
		return nil
	}

	manager := mcp.NewManager(cfg)
	manager.StartAll(cmd.Context())
	defer manager.StopAll()

	states := manager.States()
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	for _, state := range states {
		if state.Error != nil {
			fmt.Printf("%-16s %s: %v\n", state.Name, state.Status, state.Error)
		} else {
			fmt.Printf("%-16s %s\n", state.Name, state.Status)
		}
	}

	tools := manager.AllTools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	for _, tool := range tools {
		fmt.Printf("  %-32s %s\n", tool.Name, tool.Description)
	}
	return nil
}
