// Package commands implements the draftctl command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/draftsync/internal/logging"
)

// globalOpts are the persistent flags shared by every subcommand.
type globalOpts struct {
	configPath string
	natsURL    string
	backend    string
	logLevel   string
}

var globals globalOpts

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "draftctl",
		Short: "Run and inspect draftsync auto-save contexts",
		Long: `draftctl runs one draftsync context: it joins the leader election of a
resource over NATS JetStream KV, auto-saves edits when it leads and writes an
emergency record on SIGINT/SIGTERM when edits are still unsaved.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&globals.configPath, "config", "c", "", "config file (default ~/.config/draftsync/config.yaml)")
	root.PersistentFlags().StringVar(&globals.natsURL, "nats-url", "", "NATS server URL (overrides config)")
	root.PersistentFlags().StringVar(&globals.backend, "storage", "", "storage backend: memory, nats or sqlite (overrides config)")
	root.PersistentFlags().StringVar(&globals.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newEmergencyCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (Config, error) {
	cfg, err := LoadConfig(globals.configPath)
	if err != nil {
		return Config{}, err
	}
	if globals.natsURL != "" {
		cfg.NATS.URL = globals.natsURL
	}
	if globals.backend != "" {
		cfg.Storage.Backend = globals.backend
		if err := checkBackend(cfg.Storage.Backend); err != nil {
			return Config{}, err
		}
	}
	if globals.logLevel != "" {
		cfg.Log.Level = globals.logLevel
	}

	return cfg, nil
}

func newLogger(cfg Config) *logging.SlogLogger {
	return logging.NewText(os.Stderr, cfg.Log.Level)
}

func checkBackend(backend string) error {
	switch backend {
	case backendMemory, backendNATS, backendSQLite:
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, nats or sqlite)", backend)
	}
}
