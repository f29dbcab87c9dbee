package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quillmd/quill/internal/config"
	"github.com/quillmd/quill/internal/credentials"
)

var providersJSON bool

// ProviderInfo describes a provider for listing and scripting.
type ProviderInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	HasKey  bool   `json:"has_key"`
	Default bool   `json:"default"`
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List and configure LLM providers",
	Long: `List configured providers and manage their API keys.

Keys live in the credential store, not in config.yaml. Requests are
authenticated by the transport layer; provider SDKs never see the key.`,
	RunE: runProvidersList,
}

var providersSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider>",
	Short: "Store an API key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runProvidersSetKey,
}

var providersDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key <provider>",
	Short: "Remove a provider's stored API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runProvidersDeleteKey,
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "output as JSON")
	providersCmd.AddCommand(providersSetKeyCmd, providersDeleteKeyCmd)
	rootCmd.AddCommand(providersCmd)
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := credentials.DefaultStore()
	if err != nil {
		return err
	}

	names := map[string]bool{"anthropic": true, "openai": true, "gemini": true, "ollama": true}
	for name := range cfg.Providers {
		names[name] = true
	}

	var infos []ProviderInfo
	for name := range names {
		pc, err := cfg.Provider(name)
		if err != nil {
			continue
		}
		secret, _ := store.Resolve(pc.CredentialRef)
		infos = append(infos, ProviderInfo{
			Name:    name,
			Kind:    pc.Kind,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
			HasKey:  secret != "",
			Default: name == cfg.DefaultProvider,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	if providersJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	for _, info := range infos {
		marker := " "
		if info.Default {
			marker = "*"
		}
		key := "no key"
		if info.HasKey {
			key = "key set"
		}
		line := fmt.Sprintf("%s %-12s %-14s %s", marker, info.Name, info.Kind, key)
		if info.Model != "" {
			line += "  model=" + info.Model
		}
		if info.BaseURL != "" {
			line += "  url=" + info.BaseURL
		}
		fmt.Println(line)
	}
	return nil
}

func runProvidersSetKey(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pc, err := cfg.Provider(args[0])
	if err != nil {
		return err
	}

	var key string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("API key for %s: ", pc.ID)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		key = string(raw)
	} else {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return err
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key")
	}

	store, err := credentials.DefaultStore()
	if err != nil {
		return err
	}
	if err := store.Set(pc.CredentialRef, key); err != nil {
		return err
	}
	fmt.Printf("Stored key for %s\n", pc.ID)
	return nil
}

func runProvidersDeleteKey(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pc, err := cfg.Provider(args[0])
	if err != nil {
		return err
	}
	store, err := credentials.DefaultStore()
	if err != nil {
		return err
	}
	if err := store.Delete(pc.CredentialRef); err != nil {
		return err
	}
	fmt.Printf("Removed key for %s\n", pc.ID)
	return nil
}
