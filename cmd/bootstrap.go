package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quillmd/quill/internal/config"
	"github.com/quillmd/quill/internal/credentials"
	"github.com/quillmd/quill/internal/editor"
	"github.com/quillmd/quill/internal/llm"
	"github.com/quillmd/quill/internal/mcp"
	"github.com/quillmd/quill/internal/tools"
	"github.com/quillmd/quill/internal/transport"
)

// runtime bundles everything a chat turn needs: the engine wired to one
// provider, the in-memory editor, and the provider config used to shape
// requests.
type runtime struct {
	cfg      *config.Config
	pc       config.ProviderConfig
	model    string
	provider llm.Provider
	engine   *llm.Engine
	editor   *editor.Editor
	mcp      *mcp.Manager
}

// buildRuntime resolves flags and config into a ready engine. Secrets stay
// behind the transport broker: the provider SDKs only ever see placeholder
// keys.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	providerName := providerFlag
	model := ""
	if modelFlag != "" {
		p, m, err := llm.ParseProviderModel(modelFlag)
		if err != nil {
			return nil, err
		}
		if m == "" {
			// bare "--model gpt-5.2" names a model, not a provider
			model = p
		} else {
			providerName, model = p, m
		}
	}

	pc, err := cfg.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = pc.Model
	}
	if model == "" {
		return nil, fmt.Errorf("provider %q has no model configured", pc.ID)
	}

	store, err := credentials.DefaultStore()
	if err != nil {
		return nil, err
	}
	broker := transport.NewBroker(store)
	client := broker.Client(transport.SchemeForKind(pc.Kind), pc.CredentialRef)

	provider, err := llm.NewProvider(llm.ProviderSettings{
		Name:    pc.ID,
		Kind:    llm.ProviderKind(pc.Kind),
		Model:   model,
		BaseURL: pc.BaseURL,
	}, client)
	if err != nil {
		return nil, err
	}

	ed := editor.New()
	registry := llm.NewToolRegistry()
	workspaceRoot, err := os.Getwd()
	if err != nil {
		workspaceRoot = "."
	}
	tools.RegisterBuiltins(registry, ed, workspaceRoot)

	engine := llm.NewEngine(provider, registry, engineConfig(cfg.Engine))
	engine.Dispatcher().SetRedirect(tools.EditorRedirect(ed))

	return &runtime{
		cfg:      cfg,
		pc:       pc,
		model:    model,
		provider: provider,
		engine:   engine,
		editor:   ed,
	}, nil
}

// startMCP loads mcp.json, starts the configured servers, and registers
// their tools. Built-in tools keep their names on conflict.
func (rt *runtime) startMCP(cmd *cobra.Command) {
	mcpCfg, err := mcp.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: mcp config: %v\n", err)
		return
	}
	if len(mcpCfg.Servers) == 0 {
		return
	}
	manager := mcp.NewManager(mcpCfg)
	manager.StartAll(cmd.Context())
	registered := mcp.RegisterMCPTools(manager, rt.engine.Tools())
	if registered > 0 {
		fmt.Fprintf(os.Stderr, "Registered %d MCP tools\n", registered)
	}
	rt.mcp = manager
}

func (rt *runtime) shutdown() {
	if rt.mcp != nil {
		rt.mcp.StopAll()
	}
}

// request builds the per-turn request template; the engine supplies the
// message window and tool specs.
func (rt *runtime) request() llm.Request {
	return llm.Request{
		Model:           rt.model,
		MaxOutputTokens: rt.pc.MaxTokens,
		Temperature:     float32(rt.pc.Temperature),
		Debug:           debugFlag || rt.cfg.Debug,
	}
}

// debugLogger opens a JSONL trace under the data dir when --debug is set.
func (rt *runtime) debugLogger(conversationID string) *llm.DebugLogger {
	if !debugFlag && !rt.cfg.Debug {
		return nil
	}
	logger, err := llm.NewDebugLogger(filepath.Join(config.GetDataDir(), "debug"), conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Debug log: %s\n", logger.Path())
	return logger
}

func engineConfig(ec config.EngineConfig) llm.Config {
	cfg := llm.DefaultConfig()
	if ec.MaxRounds > 0 {
		cfg.MaxRounds = ec.MaxRounds
	}
	if ec.TruncationRetries > 0 {
		cfg.TruncationRetries = ec.TruncationRetries
	}
	if ec.ToolTimeout > 0 {
		cfg.ToolTimeout = ec.ToolTimeout
	}
	if ec.StallWindow > 0 {
		cfg.StallWindow = ec.StallWindow
	}
	if ec.ToolResultLimit > 0 {
		cfg.ToolResultLimit = ec.ToolResultLimit
		cfg.Window.ToolResultLimit = ec.ToolResultLimit
	}
	if ec.WindowTurns > 0 {
		cfg.Window.MaxTurns = ec.WindowTurns
	}
	if ec.ToolArgLimit > 0 {
		cfg.Window.ToolArgLimit = ec.ToolArgLimit
	}
	if ec.ImageTurns > 0 {
		cfg.Window.ImageTurns = ec.ImageTurns
	}
	return cfg
}
