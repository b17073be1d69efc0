package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/guard"
	"github.com/seuros/haven/internal/middleware"
)

var errJWTSecretRequired = errors.New("JWT_SECRET is not set; cannot sign tokens")

type tokenOptions struct {
	subject        string
	role           string
	org            string
	impersonatedBy string
	ttl            time.Duration
}

var devToken tokenOptions

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Local development helpers",
}

var devTokenCmd = &cobra.Command{
	Use:   "token --subject <user-id> [--role <role>] [--org <slug>]",
	Short: "Sign an access token for local testing",
	Long: `Sign an access token with JWT_SECRET.

Set it as the haven_access cookie to browse the admin portal as that user. Without
--role the server looks the role up in user_roles.

Examples:
  haven dev token --subject u-1 --role super_admin
  haven dev token --subject u-2 --role org_admin --org acme
  haven dev token --subject u-1 --role super_admin --org acme --impersonated-by u-1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runDevToken(cmd.OutOrStdout(), cfg, devToken)
	},
}

func runDevToken(w io.Writer, cfg *config.Config, opts tokenOptions) error {
	if cfg.JWTSecret == "" {
		return errJWTSecretRequired
	}
	if opts.subject == "" {
		return errors.New("--subject is required")
	}
	if opts.role != "" && guard.ParseRole(opts.role) == guard.RoleNone && opts.role != string(guard.RoleNone) {
		return fmt.Errorf("unknown role %q", opts.role)
	}
	if opts.ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	claims := middleware.Claims{
		Role:           string(guard.ParseRole(opts.role)),
		Org:            opts.org,
		ImpersonatedBy: opts.impersonatedBy,
	}
	claims.Subject = opts.subject

	token, err := middleware.IssueToken([]byte(cfg.JWTSecret), claims, opts.ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func init() {
	devTokenCmd.Flags().StringVar(&devToken.subject, "subject", "", "User id carried in the sub claim")
	devTokenCmd.Flags().StringVar(&devToken.role, "role", "", "super_admin, developer, org_admin, org_user or none")
	devTokenCmd.Flags().StringVar(&devToken.org, "org", "", "Organization slug")
	devTokenCmd.Flags().StringVar(&devToken.impersonatedBy, "impersonated-by", "", "Super admin user id for an impersonation session")
	devTokenCmd.Flags().DurationVar(&devToken.ttl, "ttl", time.Hour, "Token lifetime")

	devCmd.AddCommand(devTokenCmd)
	RootCmd.AddCommand(devCmd)
}
