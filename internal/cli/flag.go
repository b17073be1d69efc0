package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/content"
	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/models"
)

// flagStore is the feature flag surface the CLI writes through.
type flagStore interface {
	ListFlags(ctx context.Context) ([]models.FeatureFlag, error)
	SetFlagState(ctx context.Context, key string, on bool) error
	SetFlagActive(ctx context.Context, key string, active bool) error
}

var newFlagStore = func() flagStore { return content.NewSQLStore(database.DB) }

var (
	flagListFormat string
	flagRevive     bool
)

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Manage feature flags",
	Long: `Inspect and change feature flags.

A flag is enabled only while it is active and its default state is on. "kill"
turns a flag off everywhere without losing its default state.

Servers pick up changes once their cached value goes stale (CACHE_TTL). When
REDIS_URL is set the shared cache entry is dropped immediately.`,
}

var flagListCmd = &cobra.Command{
	Use:   "list [--format table|json]",
	Short: "List feature flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runFlagList(ctx, cmd.OutOrStdout(), newFlagStore(), resolveFormat(flagListFormat))
		})
	},
}

var flagSetCmd = &cobra.Command{
	Use:   "set <key> on|off",
	Short: "Set a flag's default state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		return withDatabase(func(ctx context.Context, cfg *config.Config) error {
			return runFlagUpdate(ctx, cmd.OutOrStdout(), cfg, args[0], func(store flagStore) error {
				return store.SetFlagState(ctx, args[0], on)
			}, "set "+args[1])
		})
	},
}

var flagKillCmd = &cobra.Command{
	Use:   "kill <key> [--revive]",
	Short: "Switch a flag off everywhere, or bring it back with --revive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "killed"
		if flagRevive {
			action = "revived"
		}
		return withDatabase(func(ctx context.Context, cfg *config.Config) error {
			return runFlagUpdate(ctx, cmd.OutOrStdout(), cfg, args[0], func(store flagStore) error {
				return store.SetFlagActive(ctx, args[0], flagRevive)
			}, action)
		})
	},
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "enable":
		return true, nil
	case "off", "false", "disable":
		return false, nil
	}
	return false, fmt.Errorf("state must be on or off, got %q", raw)
}

func runFlagList(ctx context.Context, w io.Writer, store flagStore, format string) error {
	flags, err := store.ListFlags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list flags: %w", err)
	}

	switch format {
	case formatJSON:
		if flags == nil {
			flags = []models.FeatureFlag{}
		}
		return writeJSON(w, flags)
	case formatTable:
		if len(flags) == 0 {
			_, _ = fmt.Fprintln(w, "No feature flags defined")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "KEY\tNAME\tDEFAULT\tACTIVE\tENABLED")
		_, _ = fmt.Fprintln(tw, "---\t----\t-------\t------\t-------")
		for i := range flags {
			f := &flags[i]
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				f.Key, f.Name, boolMark(f.DefaultState), boolMark(f.IsActive), boolMark(f.Enabled()))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

func runFlagUpdate(ctx context.Context, w io.Writer, cfg *config.Config, key string, apply func(flagStore) error, action string) error {
	if err := apply(newFlagStore()); err != nil {
		if errors.Is(err, content.ErrUnknownFlag) {
			return fmt.Errorf("flag '%s' does not exist", key)
		}
		return fmt.Errorf("failed to update flag: %w", err)
	}
	dropSharedFlag(ctx, cfg, key)
	_, _ = fmt.Fprintf(w, "✓ Flag '%s' %s\n", key, action)
	return nil
}

// dropSharedFlag removes the flag from the shared cache so every server rereads it.
func dropSharedFlag(ctx context.Context, cfg *config.Config, key string) {
	if cfg == nil || cfg.RedisURL == "" {
		return
	}
	r, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logging.L().Warn("could not reach shared cache; servers refresh after CACHE_TTL", zap.Error(err))
		return
	}
	defer func() { _ = r.Close() }()
	content.NewService(nil, content.WithRemote(r)).InvalidateFlag(ctx, key)
}

func init() {
	flagListCmd.Flags().StringVarP(&flagListFormat, "format", "f", "", "Output format (table, json)")
	flagKillCmd.Flags().BoolVar(&flagRevive, "revive", false, "Re-activate a killed flag")

	flagCmd.AddCommand(flagListCmd)
	flagCmd.AddCommand(flagSetCmd)
	flagCmd.AddCommand(flagKillCmd)

	RootCmd.AddCommand(flagCmd)
}
