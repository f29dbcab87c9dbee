package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillmd/quill/internal/config"
	"github.com/quillmd/quill/internal/llm"
	"github.com/quillmd/quill/internal/session"
	"github.com/quillmd/quill/internal/transport"
)

var (
	resumeFlag string
	noSaveFlag bool
)

const systemPrompt = `You are a writing assistant working inside a markdown editor.
Help the user draft, revise, and organize markdown documents. Use the
available tools to read the open document, apply edits, and browse the
workspace. Make edits through tools rather than pasting whole documents
into the chat. Keep replies concise.`

var chatCmd = &cobra.Command{
	Use:   "chat [file.md]",
	Short: "Chat with the writing assistant",
	Long: `Start an interactive chat. An optional markdown file is opened in the
in-memory editor so the assistant can read and rewrite it with tools.

Press Ctrl-C to interrupt a reply in progress; the partial text is kept.
Type /quit (or Ctrl-D) to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&resumeFlag, "resume", "", "resume a stored session by id")
	chatCmd.Flags().BoolVar(&noSaveFlag, "no-save", false, "do not persist this session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	rt.startMCP(cmd)
	defer rt.shutdown()

	if len(args) == 1 {
		if err := openInEditor(rt, args[0]); err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	var store *session.Store
	if !noSaveFlag {
		store, err = session.NewStore(filepath.Join(config.GetDataDir(), "sessions.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: session store disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	var conv *llm.Conversation
	var sess *session.Session
	switch {
	case resumeFlag != "":
		if store == nil {
			return fmt.Errorf("--resume requires session storage")
		}
		conv, sess, err = loadSession(cmd, store, resumeFlag)
		if err != nil {
			return err
		}
	default:
		conv = llm.NewConversationWithHistory("", []llm.Message{llm.SystemText(systemPrompt)})
	}

	logger := rt.debugLogger(conv.ID())
	if logger != nil {
		defer logger.Close()
		rt.engine.SetDebugLogger(logger)
	}
	if store != nil {
		rt.engine.SetTurnCompletedCallback(persistRounds(store, &sess))
	}

	// Turn contexts go through the abort registry so Ctrl-C tears down the
	// in-flight HTTP work in addition to invalidating the generation.
	aborts := transport.NewAbortRegistry()

	// Ctrl-C interrupts the in-flight turn; at the prompt it exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				interrupted := conv.Abort()
				if aborts.Abort(conv.ID()) {
					interrupted = true
				}
				if !interrupted {
					fmt.Fprintln(os.Stderr, "\nInterrupted")
					os.Exit(130)
				}
			case <-done:
				return
			}
		}
	}()

	fmt.Printf("quill (%s %s) - /quit to exit\n", rt.pc.ID, rt.model)

	// Resume a turn that ended mid-tool-loop before prompting again.
	if history := conv.History(); len(history) > 0 && history[len(history)-1].Role == llm.RoleTool {
		turnCtx, release := aborts.Register(ctx, conv.ID())
		stream, err := rt.engine.Resume(turnCtx, conv, rt.request())
		if err == nil {
			renderStream(stream)
		}
		release()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := chatCommand(rt, line); quit {
				break
			}
			continue
		}

		if store != nil && sess == nil {
			sess = &session.Session{
				ID:       conv.ID(),
				Provider: rt.pc.ID,
				Model:    rt.model,
				Summary:  session.TruncateSummary(line),
			}
			if err := store.Create(ctx, sess); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: session not saved: %v\n", err)
				sess = nil
			}
		}

		userMsg := llm.UserText(line)
		if store != nil && sess != nil {
			if err := store.AddMessage(ctx, sess.ID, session.NewMessage(sess.ID, userMsg, -1)); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: message not saved: %v\n", err)
			}
		}

		turnCtx, release := aborts.Register(ctx, conv.ID())
		stream, err := rt.engine.Send(turnCtx, conv, userMsg, rt.request())
		if err != nil {
			release()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		renderStream(stream)
		release()
	}

	if store != nil && sess != nil {
		if err := store.UpdateStatus(ctx, sess.ID, statusFor(conv.Status())); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: session status not saved: %v\n", err)
		}
	}
	return nil
}

// chatCommand handles slash commands. Returns true when the loop should end.
func chatCommand(rt *runtime, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/open":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "Usage: /open <file.md>")
			return false
		}
		if err := openInEditor(rt, rest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	case "/save":
		path, content := rt.editor.Snapshot()
		if path == "" {
			fmt.Fprintln(os.Stderr, "No file open")
			return false
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Printf("Saved %s\n", path)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s (try /open, /save, /quit)\n", cmd)
	}
	return false
}

func openInEditor(rt *runtime, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		data = nil // new document
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rt.editor.Open(abs, string(data))
	fmt.Printf("Opened %s (%d bytes)\n", abs, len(data))
	return nil
}

// renderStream drains one turn's events to the terminal.
func renderStream(stream llm.Stream) {
	defer stream.Close()
	wroteText := false
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		switch event.Type {
		case llm.EventTextDelta:
			fmt.Print(event.Text)
			wroteText = true
		case llm.EventToolExecStart:
			if wroteText {
				fmt.Println()
				wroteText = false
			}
			fmt.Fprintf(os.Stderr, "⚙ %s...\n", event.ToolName)
		case llm.EventToolExecEnd:
			if !event.ToolSuccess {
				fmt.Fprintf(os.Stderr, "⚙ %s failed\n", event.ToolName)
			}
		case llm.EventError:
			if wroteText {
				fmt.Println()
				wroteText = false
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", event.Err)
		case llm.EventDone:
			if wroteText {
				fmt.Println()
			}
			switch event.Outcome {
			case llm.OutcomeAborted:
				fmt.Fprintln(os.Stderr, "(interrupted)")
			case llm.OutcomeRoundLimit:
				fmt.Fprintln(os.Stderr, "(stopped: too many tool rounds)")
			case llm.OutcomeGivenUp:
				fmt.Fprintln(os.Stderr, "(stopped: reply kept getting cut off)")
			}
		}
	}
}

// persistRounds stores each completed round's messages and metrics. The
// session pointer is shared with the chat loop, which creates the row
// lazily on the first user message.
func persistRounds(store *session.Store, sess **session.Session) llm.TurnCompletedCallback {
	return func(ctx context.Context, round int, messages []llm.Message, metrics llm.TurnMetrics) error {
		s := *sess
		if s == nil {
			return nil
		}
		for _, msg := range messages {
			if err := store.AddMessage(ctx, s.ID, session.NewMessage(s.ID, msg, -1)); err != nil {
				return err
			}
		}
		return store.UpdateMetrics(ctx, s.ID, 1, metrics.ToolCalls, metrics.InputTokens, metrics.OutputTokens)
	}
}

func loadSession(cmd *cobra.Command, store *session.Store, id string) (*llm.Conversation, *session.Session, error) {
	ctx := cmd.Context()
	sess, err := store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, fmt.Errorf("session %q not found", id)
	}
	stored, err := store.GetMessages(ctx, id, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	history := make([]llm.Message, 0, len(stored)+1)
	history = append(history, llm.SystemText(systemPrompt))
	for _, m := range stored {
		history = append(history, m.ToLLMMessage())
	}
	if err := store.UpdateStatus(ctx, id, session.StatusActive); err != nil {
		return nil, nil, err
	}
	return llm.NewConversationWithHistory(id, history), sess, nil
}

func statusFor(status llm.TurnStatus) session.Status {
	switch status {
	case llm.TurnInterrupted:
		return session.StatusInterrupted
	case llm.TurnFailed:
		return session.StatusError
	default:
		return session.StatusComplete
	}
}
