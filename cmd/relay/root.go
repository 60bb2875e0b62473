package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relayai/relay/core/registry"
	"github.com/relayai/relay/secrets"
)

// app bundles the state every subcommand needs.
type app struct {
	manager    *registry.Manager
	configPath string
}

func newRootCommand() *cobra.Command {
	application := &app{}
	var configDir string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Chat with configured AI providers from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return application.load(configDir)
		},
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "directory holding providers.yaml and secrets.json")

	root.AddCommand(
		newProvidersCommand(application),
		newModelsCommand(application),
		newChatCommand(application),
		newValidateCommand(application),
		newUsageCommand(application),
	)
	return root
}

func defaultConfigDir() string {
	if dir := os.Getenv("RELAY_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relay"
	}
	return filepath.Join(home, ".relay")
}

// load wires the manager from the config directory. A missing provider file
// is an empty configuration, not an error, so first runs work.
func (a *app) load(configDir string) error {
	store, err := secrets.NewFileStore(filepath.Join(configDir, "secrets.json"))
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}

	a.manager = registry.NewManager(store)
	a.configPath = filepath.Join(configDir, "providers.yaml")

	providers, err := registry.LoadFile(a.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	a.manager.Load(providers)
	return nil
}

// resolveProvider turns an optional positional argument into a provider id,
// falling back to the default provider.
func (a *app) resolveProvider(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if provider := a.manager.DefaultProvider(); provider != nil {
		return provider.ID, nil
	}
	return "", fmt.Errorf("no providers configured; add one to %s", a.configPath)
}
