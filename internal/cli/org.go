package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/realtime"
	"github.com/seuros/haven/internal/tenant"
)

// orgStore is the organization surface the CLI writes through.
type orgStore interface {
	Get(ctx context.Context, slug string) (*models.Organization, error)
	List(ctx context.Context, includeInactive bool) ([]models.Organization, error)
	UpdateServices(ctx context.Context, slug string, svc models.PropertyService, enabled bool) (*models.Organization, error)
	SetActive(ctx context.Context, slug string, active bool) error
	SetDomain(ctx context.Context, slug, domain string) error
}

var newOrgStore = func() orgStore { return tenant.NewSQLStore(database.DB) }

var (
	orgListAll    bool
	orgListFormat string
	orgShowFormat string
	orgForce      bool
	orgClear      bool
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
	Long: `Inspect and change agency organizations.

Every write fires the organizations trigger, so running servers drop their cached
copy and live site sessions are refreshed.`,
}

var orgListCmd = &cobra.Command{
	Use:   "list [--all] [--format table|json|csv]",
	Short: "List organizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgList(ctx, cmd.OutOrStdout(), newOrgStore(), orgListAll, resolveFormat(orgListFormat))
		})
	},
}

var orgShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show one organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgShow(ctx, cmd.OutOrStdout(), newOrgStore(), args[0], resolveFormat(orgShowFormat))
		})
	},
}

var orgServicesCmd = &cobra.Command{
	Use:   "services <slug> <service> on|off",
	Short: "Enable or disable a property service",
	Long: `Enable or disable one property service for an organization.

Services: sales, rentals, holiday-rentals. The last enabled service cannot be
switched off.

Examples:
  haven org services acme holiday-rentals on
  haven org services acme sales off`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgServices(ctx, cmd.OutOrStdout(), newOrgStore(), args[0], args[1], args[2])
		})
	},
}

var orgActivateCmd = &cobra.Command{
	Use:   "activate <slug>",
	Short: "Re-enable an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgSetActive(ctx, cmd.OutOrStdout(), os.Stdin, newOrgStore(), args[0], true, true)
		})
	},
}

var orgDeactivateCmd = &cobra.Command{
	Use:   "deactivate <slug> [--force]",
	Short: "Soft-disable an organization",
	Long: `Soft-disable an organization. Its public site stops resolving and its
custom domain shows the not-found page. Data is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgSetActive(ctx, cmd.OutOrStdout(), os.Stdin, newOrgStore(), args[0], false, orgForce)
		})
	},
}

var orgSetDomainCmd = &cobra.Command{
	Use:   "set-domain <slug> [domain] [--clear]",
	Short: "Assign or clear an organization's custom domain",
	Long: `Assign the custom domain an organization's public site answers on.

The domain should be provided without protocol. Use --clear to remove it.

Examples:
  haven org set-domain acme acme-homes.com
  haven org set-domain acme --clear`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := ""
		if len(args) == 2 {
			domain = args[1]
		}
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			return runOrgSetDomain(ctx, cmd.OutOrStdout(), newOrgStore(), args[0], domain, orgClear)
		})
	},
}

var orgInvalidateCmd = &cobra.Command{
	Use:   "invalidate <slug>",
	Short: "Tell running servers to drop their cached copy of an organization",
	Long: `Publish a change notification for an organization without writing to it.

Useful after editing rows by hand with triggers disabled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, _ *config.Config) error {
			slug := strings.ToLower(strings.TrimSpace(args[0]))
			if err := realtime.NotifyOrgChanged(ctx, database.DB, slug); err != nil {
				return fmt.Errorf("failed to notify: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Change notification sent for '%s'\n", slug)
			return nil
		})
	},
}

func runOrgList(ctx context.Context, w io.Writer, store orgStore, includeInactive bool, format string) error {
	orgs, err := store.List(ctx, includeInactive)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	switch format {
	case formatJSON:
		if orgs == nil {
			orgs = []models.Organization{}
		}
		return writeJSON(w, orgs)
	case formatCSV:
		return outputOrgCSV(w, orgs)
	case formatTable:
		return outputOrgTable(w, orgs)
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

func runOrgShow(ctx context.Context, w io.Writer, store orgStore, slug, format string) error {
	org, err := store.Get(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if errors.Is(err, tenant.ErrNotFound) {
		return fmt.Errorf("organization '%s' not found", slug)
	}
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		return writeJSON(w, org)
	case formatTable:
		return outputOrgDetail(w, org)
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

func runOrgServices(ctx context.Context, w io.Writer, store orgStore, slug, service, state string) error {
	svc, err := models.ParsePropertyService(service)
	if err != nil {
		return err
	}
	enabled, err := parseOnOff(state)
	if err != nil {
		return err
	}

	org, err := store.UpdateServices(ctx, strings.ToLower(slug), svc, enabled)
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		return fmt.Errorf("organization '%s' not found", slug)
	case errors.Is(err, models.ErrLastPropertyService):
		return fmt.Errorf("cannot disable %s for '%s': %w", svc, slug, err)
	case err != nil:
		return fmt.Errorf("failed to update services: %w", err)
	}

	_, _ = fmt.Fprintf(w, "✓ %s: %s\n", org.Slug, strings.Join(org.Services.Names(), ", "))
	return nil
}

func runOrgSetActive(ctx context.Context, w io.Writer, in io.Reader, store orgStore, slug string, active, force bool) error {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !active && !force {
		ok, err := confirm(w, in, fmt.Sprintf("Deactivate organization '%s'?", slug))
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(w, "Deactivation cancelled")
			return nil
		}
	}

	if err := store.SetActive(ctx, slug, active); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return fmt.Errorf("organization '%s' not found", slug)
		}
		return err
	}

	status := "activated"
	if !active {
		status = "deactivated"
	}
	_, _ = fmt.Fprintf(w, "✓ Organization '%s' %s\n", slug, status)
	return nil
}

func runOrgSetDomain(ctx context.Context, w io.Writer, store orgStore, slug, domain string, clearDomain bool) error {
	slug = strings.ToLower(strings.TrimSpace(slug))
	clean := ""
	if !clearDomain {
		var err error
		clean, err = config.SanitizeTrustedDomain(domain)
		if err != nil {
			return err
		}
	}

	if err := store.SetDomain(ctx, slug, clean); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return fmt.Errorf("organization '%s' not found", slug)
		}
		return fmt.Errorf("failed to set domain: %w", err)
	}

	if clean == "" {
		_, _ = fmt.Fprintf(w, "✓ Custom domain cleared for '%s'\n", slug)
		return nil
	}
	_, _ = fmt.Fprintf(w, "✓ '%s' now answers on %s\n", slug, clean)
	_, _ = fmt.Fprintln(w, "Note: point the domain's DNS at this server before sharing it")
	return nil
}

func outputOrgTable(w io.Writer, orgs []models.Organization) error {
	if len(orgs) == 0 {
		_, _ = fmt.Fprintln(w, "No organizations found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SLUG\tNAME\tDOMAIN\tSERVICES\tACTIVE\tCOMPED")
	_, _ = fmt.Fprintln(tw, "----\t----\t------\t--------\t------\t------")
	for _, org := range orgs {
		domain := models.Deref(org.Domain)
		if domain == "" {
			domain = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			org.Slug,
			org.BusinessName,
			domain,
			strings.Join(org.Services.Names(), ","),
			boolMark(org.IsActive),
			boolMark(org.IsComped),
		)
	}
	return tw.Flush()
}

func outputOrgCSV(w io.Writer, orgs []models.Organization) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"slug", "business_name", "domain", "property_services", "is_active", "is_comped", "created_at"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, org := range orgs {
		err := cw.Write([]string{
			org.Slug,
			org.BusinessName,
			models.Deref(org.Domain),
			strings.Join(org.Services.Names(), ";"),
			fmt.Sprint(org.IsActive),
			fmt.Sprint(org.IsComped),
			org.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}

func outputOrgDetail(w io.Writer, org *models.Organization) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	optional := func(s *string) string {
		if v := models.Deref(s); v != "" {
			return v
		}
		return "(none)"
	}

	_, _ = fmt.Fprintf(tw, "Slug:\t%s\n", org.Slug)
	_, _ = fmt.Fprintf(tw, "Name:\t%s\n", org.BusinessName)
	_, _ = fmt.Fprintf(tw, "ID:\t%s\n", org.ID)
	_, _ = fmt.Fprintf(tw, "Domain:\t%s\n", optional(org.Domain))
	_, _ = fmt.Fprintf(tw, "Services:\t%s\n", strings.Join(org.Services.Names(), ", "))
	_, _ = fmt.Fprintf(tw, "Primary color:\t%s\n", optional(org.PrimaryColor))
	_, _ = fmt.Fprintf(tw, "Secondary color:\t%s\n", optional(org.SecondaryColor))
	_, _ = fmt.Fprintf(tw, "Active:\t%v\n", org.IsActive)
	_, _ = fmt.Fprintf(tw, "Comped:\t%v\n", org.IsComped)
	_, _ = fmt.Fprintf(tw, "Public site hidden:\t%v\n", org.HidePublicSite)
	_, _ = fmt.Fprintf(tw, "Created:\t%s\n", org.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(tw, "Updated:\t%s\n", org.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}

func init() {
	orgListCmd.Flags().BoolVar(&orgListAll, "all", false, "Include inactive organizations")
	orgListCmd.Flags().StringVarP(&orgListFormat, "format", "f", "", "Output format (table, json, csv)")
	orgShowCmd.Flags().StringVarP(&orgShowFormat, "format", "f", "", "Output format (table, json)")
	orgDeactivateCmd.Flags().BoolVarP(&orgForce, "force", "f", false, "Skip confirmation prompt")
	orgSetDomainCmd.Flags().BoolVar(&orgClear, "clear", false, "Remove the custom domain")

	orgCmd.AddCommand(orgListCmd)
	orgCmd.AddCommand(orgShowCmd)
	orgCmd.AddCommand(orgServicesCmd)
	orgCmd.AddCommand(orgActivateCmd)
	orgCmd.AddCommand(orgDeactivateCmd)
	orgCmd.AddCommand(orgSetDomainCmd)
	orgCmd.AddCommand(orgInvalidateCmd)

	RootCmd.AddCommand(orgCmd)
}
