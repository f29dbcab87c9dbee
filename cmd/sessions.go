package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quillmd/quill/internal/config"
	"github.com/quillmd/quill/internal/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored chat sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSessionStore() (*session.Store, error) {
	return session.NewStore(filepath.Join(config.GetDataDir(), "sessions.db"))
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), sessionsLimit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions")
		return nil
	}
	for _, sum := range summaries {
		fmt.Printf("%s  %s  %-11s %3d msgs  %s\n",
			sum.ID[:8], sum.UpdatedAt.Format("2006-01-02 15:04"), sum.Status, sum.MessageCount, sum.Summary)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveSessionID(cmd, store, args[0])
	if err != nil {
		return err
	}
	sess, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %q not found", args[0])
	}

	fmt.Printf("Session %s (%s %s, %s)\n", sess.ID, sess.Provider, sess.Model, sess.Status)
	fmt.Printf("Tokens: %d in / %d out, %d tool calls\n\n", sess.InputTokens, sess.OutputTokens, sess.ToolCalls)

	messages, err := store.GetMessages(cmd.Context(), id, 0, 0)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		text := msg.TextContent
		if text == "" {
			text = "(tool activity)"
		}
		fmt.Printf("[%s] %s\n", msg.Role, text)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveSessionID(cmd, store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}

// resolveSessionID accepts a full id or an unambiguous prefix.
func resolveSessionID(cmd *cobra.Command, store *session.Store, arg string) (string, error) {
	if len(arg) >= 36 {
		return arg, nil
	}
	summaries, err := store.List(cmd.Context(), 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, sum := range summaries {
		if len(sum.ID) >= len(arg) && sum.ID[:len(arg)] == arg {
			if match != "" {
				return "", fmt.Errorf("ambiguous session id %q", arg)
			}
			match = sum.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("session %q not found", arg)
	}
	return match, nil
}
