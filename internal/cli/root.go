package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/database"
)

var Version string

// Persistent flag values. Empty means "use config file or environment".
var (
	flagDatabaseURL string
	flagPort        string
	flagDataDir     string
)

// commandTimeout bounds every single-shot database command.
const commandTimeout = 30 * time.Second

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:   "haven",
	Short: "Multi-tenant sites for real-estate agencies",
	Long: `Haven serves every agency's public site, the marketing site and the admin
portal from one process.

Each request is routed by hostname: marketing hosts get the marketing page, the
admin host gets the portal, and any other host is looked up as an agency's
custom domain.`,
	SilenceUsage: true,
	// Default to serve command if no subcommand provided
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServe(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute is called by main
func Execute(version string) error {
	Version = version
	RootCmd.Version = version
	return RootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithOverrides(flagDatabaseURL, flagPort, flagDataDir)
}

// withDatabase connects for the duration of fn. Commands share the process-wide
// pool so tests can swap database.DB for a mock.
func withDatabase(fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if database.DB == nil {
		if cfg.DatabaseURL == "" {
			return errDatabaseURLRequired
		}
		if err := database.ConnectURL(cfg.DatabaseURL); err != nil {
			return err
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, cfg)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	RootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "HTTP port (overrides PORT)")
	RootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory for the GeoIP database (overrides DATA_DIR)")

	RootCmd.AddCommand(serveCmd)
	setupSelfUpgrade()
}
