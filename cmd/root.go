package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	providerFlag string
	modelFlag    string
	debugFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "AI-assisted markdown writing from the terminal",
	Long: `Quill is a writing assistant that pairs an LLM with your markdown
files. It can read and edit the open document, browse the workspace,
and call external tools over MCP.

Credentials are stored with "quill providers set-key" and never appear
in the config file or in requests built by this process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "provider to use (overrides default_provider)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "model, or provider:model, to use")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "write request/response logs to the data dir")
}
