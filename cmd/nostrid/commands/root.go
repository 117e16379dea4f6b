package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/nostr-identity/internal/app"
	"github.com/Hussein-Mazeh/nostr-identity/internal/config"
)

var (
	configPath string
	dataDir    string
	logLevel   string
	wire       *app.Wire
)

// Execute runs the root command. An interrupt cancels any pending prompt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nostrid",
		Short:         "Manage a biometric-protected Nostr identity",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			w, err := app.NewWire(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			wire = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./nostrid.yaml or <data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "identity data directory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(createCmd(), importCmd(), statusCmd(), unlockCmd(), resetCmd(), bioCmd())
	return root
}
