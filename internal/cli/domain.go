package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/sitemode"
	"github.com/seuros/haven/internal/tenant"
)

var (
	domainOffline bool
	domainCurrent string
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Inspect hostname routing",
	Long: `Inspect how hostnames and origins are routed.

Marketing hosts, the admin host and dev preview suffixes come from configuration
(MARKETING_HOSTS, ADMIN_HOST, DEV_HOST_SUFFIXES). Any other host is treated as an
agency's custom domain.`,
}

var domainClassifyCmd = &cobra.Command{
	Use:   "classify <host> [--offline]",
	Short: "Show which site a hostname routes to",
	Long: `Classify a hostname and, for custom domains, look up the organization it
belongs to.

Examples:
  haven domain classify www.havenhq.com
  haven domain classify acme-homes.com
  haven domain classify pr-42.preview.havenhq.dev --offline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		classifier := sitemode.NewClassifier(cfg.MarketingHosts, cfg.AdminHost, cfg.DevHostSuffixes)
		if domainOffline || classifier.Classify(args[0]) != sitemode.OrgPublic {
			return runClassify(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], nil)
		}
		return withDatabase(func(ctx context.Context, cfg *config.Config) error {
			return runClassify(ctx, cmd.OutOrStdout(), cfg, args[0], tenant.NewSQLStore(database.DB))
		})
	},
}

var domainVerifyCmd = &cobra.Command{
	Use:   "verify <origin> [--current <origin>]",
	Short: "Verify if an origin may push branding previews and admin writes",
	Long: `Test an origin against the trusted admin origin.

Useful for debugging rejected previews or 403s on admin writes.

Examples:
  haven domain verify https://app.havenhq.com
  haven domain verify https://acme-homes.com --current https://acme-homes.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runVerify(cmd.OutOrStdout(), cfg, args[0], domainCurrent)
		return nil
	},
}

// runClassify prints the mode for host. With a store, custom domains are resolved
// the same way the server resolves them.
func runClassify(ctx context.Context, w io.Writer, cfg *config.Config, host string, store tenant.Store) error {
	classifier := sitemode.NewClassifier(cfg.MarketingHosts, cfg.AdminHost, cfg.DevHostSuffixes)
	mode := classifier.Classify(host)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Host:\t%s\n", sitemode.NormalizeHost(host))
	_, _ = fmt.Fprintf(tw, "Mode:\t%s\n", mode)

	if store == nil {
		if mode == sitemode.OrgPublic {
			_, _ = fmt.Fprintf(tw, "Organization:\t(not looked up)\n")
		}
		return tw.Flush()
	}

	resolver := tenant.NewResolver(store, classifier, tenant.WithTimeout(cfg.ResolveTimeout))
	res, err := resolver.Resolve(ctx, tenant.Request{Host: host})
	if err != nil {
		_ = tw.Flush()
		return fmt.Errorf("organization lookup failed: %w", err)
	}

	if org := res.Org; org != nil {
		_, _ = fmt.Fprintf(tw, "Organization:\t%s (%s)\n", org.Slug, org.BusinessName)
		if org.HidePublicSite {
			_, _ = fmt.Fprintf(tw, "Public site:\thidden\n")
		}
	}
	published := res.Published()
	_, _ = fmt.Fprintf(tw, "Outcome:\t%s\n", published.Outcome)
	if published.Redirect != "" {
		_, _ = fmt.Fprintf(tw, "Redirect:\t%s\n", published.Redirect)
	}
	return tw.Flush()
}

func runVerify(w io.Writer, cfg *config.Config, origin, current string) {
	if config.OriginAllowed(origin, current, cfg.TrustedAdminOrigin) {
		_, _ = fmt.Fprintf(w, "✓ Origin '%s' is TRUSTED\n", origin)
		return
	}
	_, _ = fmt.Fprintf(w, "✗ Origin '%s' is NOT TRUSTED\n", origin)
	_, _ = fmt.Fprintf(w, "\nTrusted admin origin: %s\n", cfg.TrustedAdminOrigin)
}

func init() {
	domainClassifyCmd.Flags().BoolVar(&domainOffline, "offline", false, "Skip the organization lookup")
	domainVerifyCmd.Flags().StringVar(&domainCurrent, "current", "", "Origin of the page sending the message")

	domainCmd.AddCommand(domainClassifyCmd)
	domainCmd.AddCommand(domainVerifyCmd)

	RootCmd.AddCommand(domainCmd)
}
