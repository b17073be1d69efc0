package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/database"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the Haven installation",
	Long: `Run health checks on the Haven installation.

Checks performed:
  - Data directory writable
  - GeoIP database exists
  - JWT secret configured
  - Database connection
  - PostgreSQL version ≥14
  - Database migrations completed
  - Tables, functions and triggers exist
  - Redis reachable (when REDIS_URL is set)

Example:
  haven doctor
  haven doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "✗ Configuration Error: %v\n", err)
			return err
		}

		var db *sql.DB
		if cfg.DatabaseURL != "" {
			if db, err = sql.Open("postgres", cfg.DatabaseURL); err == nil {
				defer func() { _ = db.Close() }()
			}
		}
		return runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, db, jsonOutput)
	},
}

var errChecksFailed = errors.New("health checks failed")

// expectedMigration is the newest migration shipped in internal/database/migrations.
const expectedMigration = uint(1)

const minPostgresMajor = 14

type CheckResult struct {
	Name       string `json:"name"`
	Pass       bool   `json:"pass"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Details    string `json:"details,omitempty"`
}

var requiredTables = []string{
	"organizations",
	"feature_flags",
	"content_overrides",
	"user_roles",
}

var requiredFunctions = []string{
	"get_content_overrides",
	"notify_org_changed",
}

var requiredTriggers = []string{
	"organizations_changed",
	"organizations_deleted",
}

// Swapped in tests.
var (
	migrationVersion = database.GetMigrationVersion
	pingRedis        = func(ctx context.Context, url string) error {
		r, err := connectRedis(ctx, url)
		if err != nil {
			return err
		}
		return r.Close()
	}
)

func checkDataDirectory(cfg *config.Config) CheckResult {
	testFile := filepath.Join(cfg.DataDir, ".haven-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return CheckResult{
			Name:       "Data Directory Writable",
			Error:      err.Error(),
			Suggestion: "Ensure DATA_DIR has write permissions",
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Data Directory Writable", Pass: true}
}

func checkGeoIPDatabase(cfg *config.Config) CheckResult {
	geoipPath := filepath.Join(cfg.DataDir, "GeoLite2-Country.mmdb")

	info, err := os.Stat(geoipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Name:       "GeoIP Database",
				Error:      "GeoLite2-Country.mmdb not found",
				Suggestion: "Database will auto-download on first server start",
			}
		}
		return CheckResult{Name: "GeoIP Database", Error: err.Error()}
	}

	file, err := os.Open(geoipPath)
	if err != nil {
		return CheckResult{
			Name:       "GeoIP Database",
			Error:      "Cannot read GeoLite2-Country.mmdb",
			Suggestion: "Check file permissions",
		}
	}
	_ = file.Close()

	return CheckResult{
		Name:    "GeoIP Database",
		Pass:    true,
		Details: fmt.Sprintf("%.1f MB", float64(info.Size())/(1024*1024)),
	}
}

func checkJWTSecret(cfg *config.Config) CheckResult {
	if cfg.JWTSecret == "" {
		return CheckResult{
			Name:       "JWT Secret",
			Error:      "JWT_SECRET is not set",
			Suggestion: "Without it every admin request is treated as anonymous",
		}
	}
	return CheckResult{Name: "JWT Secret", Pass: true}
}

func checkDatabaseConnection(ctx context.Context, db *sql.DB) CheckResult {
	if err := db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:       "Database Connection",
			Error:      err.Error(),
			Suggestion: "Verify DATABASE_URL and ensure PostgreSQL is running",
		}
	}
	return CheckResult{Name: "Database Connection", Pass: true}
}

func checkPostgreSQLVersion(ctx context.Context, db *sql.DB) CheckResult {
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return CheckResult{Name: "PostgreSQL Version", Error: err.Error()}
	}

	// "16.2 (Debian 16.2-1.pgdg120+2)"
	number := strings.Fields(version)[0]
	major, _ := strconv.Atoi(strings.Split(number, ".")[0])

	if major < minPostgresMajor {
		return CheckResult{
			Name:       "PostgreSQL Version",
			Error:      fmt.Sprintf("Version %s found, need ≥%d", number, minPostgresMajor),
			Suggestion: fmt.Sprintf("Upgrade PostgreSQL to version %d or higher", minPostgresMajor),
		}
	}
	return CheckResult{Name: "PostgreSQL Version", Pass: true, Details: number}
}

func checkMigrations(cfg *config.Config) CheckResult {
	version, dirty, err := migrationVersion(cfg.DatabaseURL)
	if err != nil {
		return CheckResult{
			Name:       "Database Migrations",
			Error:      err.Error(),
			Suggestion: "Migrations run automatically when the server starts",
		}
	}

	if dirty {
		return CheckResult{
			Name:       "Database Migrations",
			Error:      "Migration state is dirty",
			Suggestion: "Fix dirty migration state, may need manual intervention",
		}
	}

	if version != expectedMigration {
		return CheckResult{
			Name:       "Database Migrations",
			Error:      fmt.Sprintf("Migration version %d, expected %d", version, expectedMigration),
			Suggestion: "Start the server once to apply pending migrations",
		}
	}

	return CheckResult{Name: "Database Migrations", Pass: true, Details: fmt.Sprintf("v%d", version)}
}

// checkCatalog reports which of want are missing from a catalog query that takes
// the names as its only argument and returns one name per row.
func checkCatalog(ctx context.Context, db *sql.DB, name, kind, query string, want []string) CheckResult {
	rows, err := db.QueryContext(ctx, query, pq.Array(want))
	if err != nil {
		return CheckResult{Name: name, Error: err.Error()}
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return CheckResult{Name: name, Error: err.Error()}
		}
		found[n] = true
	}
	if err := rows.Err(); err != nil {
		return CheckResult{Name: name, Error: err.Error()}
	}

	var missing []string
	for _, w := range want {
		if !found[w] {
			missing = append(missing, w)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:       name,
			Error:      fmt.Sprintf("Missing %d %s: %s", len(missing), kind, strings.Join(missing, ", ")),
			Suggestion: "Run migrations to create missing " + kind,
		}
	}

	return CheckResult{
		Name:    name,
		Pass:    true,
		Details: fmt.Sprintf("%d/%d %s found", len(want), len(want), kind),
	}
}

func checkTables(ctx context.Context, db *sql.DB) CheckResult {
	return checkCatalog(ctx, db, "Tables", "tables", `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public' AND tablename = ANY($1)
	`, requiredTables)
}

func checkPostgreSQLFunctions(ctx context.Context, db *sql.DB) CheckResult {
	return checkCatalog(ctx, db, "PostgreSQL Functions", "functions", `
		SELECT proname
		FROM pg_proc
		JOIN pg_namespace ON pg_proc.pronamespace = pg_namespace.oid
		WHERE nspname = 'public' AND proname = ANY($1)
	`, requiredFunctions)
}

func checkPostgreSQLTriggers(ctx context.Context, db *sql.DB) CheckResult {
	return checkCatalog(ctx, db, "PostgreSQL Triggers", "triggers", `
		SELECT tgname
		FROM pg_trigger
		WHERE tgname = ANY($1)
	`, requiredTriggers)
}

func checkRedis(ctx context.Context, cfg *config.Config) CheckResult {
	if err := pingRedis(ctx, cfg.RedisURL); err != nil {
		return CheckResult{
			Name:       "Redis",
			Error:      err.Error(),
			Suggestion: "Verify REDIS_URL or unset it to run with in-process caches only",
		}
	}
	return CheckResult{Name: "Redis", Pass: true}
}

// runDoctor runs every check and prints the report. db may be nil when no database
// is configured; that counts as a failed connection check.
func runDoctor(ctx context.Context, w io.Writer, cfg *config.Config, db *sql.DB, jsonOutput bool) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	results := []CheckResult{
		checkDataDirectory(cfg),
		checkGeoIPDatabase(cfg),
		checkJWTSecret(cfg),
	}

	if db == nil {
		results = append(results, CheckResult{
			Name:       "Database Connection",
			Error:      errDatabaseURLRequired.Error(),
			Suggestion: "Set DATABASE_URL or pass --database-url",
		})
	} else if conn := checkDatabaseConnection(ctx, db); !conn.Pass {
		results = append(results, conn)
	} else {
		results = append(results,
			conn,
			checkPostgreSQLVersion(ctx, db),
			checkMigrations(cfg),
			checkTables(ctx, db),
			checkPostgreSQLFunctions(ctx, db),
			checkPostgreSQLTriggers(ctx, db),
		)
	}

	if cfg.RedisURL != "" {
		redisCtx, cancelRedis := context.WithTimeout(ctx, 5*time.Second)
		results = append(results, checkRedis(redisCtx, cfg))
		cancelRedis()
	}

	if jsonOutput {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		outputDoctorHuman(w, results)
	}

	for _, r := range results {
		if !r.Pass {
			return errChecksFailed
		}
	}
	return nil
}

func outputDoctorHuman(w io.Writer, results []CheckResult) {
	_, _ = fmt.Fprintln(w, "\n🏥 Haven Health Check")

	passed := 0
	for _, r := range results {
		icon := "✓"
		if r.Pass {
			passed++
		} else {
			icon = "✗"
		}

		_, _ = fmt.Fprintf(w, "%s %s", icon, r.Name)
		if r.Details != "" {
			_, _ = fmt.Fprintf(w, " (%s)", r.Details)
		}
		_, _ = fmt.Fprintln(w)

		if !r.Pass {
			if r.Error != "" {
				_, _ = fmt.Fprintf(w, "  Error: %s\n", r.Error)
			}
			if r.Suggestion != "" {
				_, _ = fmt.Fprintf(w, "  💡 %s\n", r.Suggestion)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\n%d/%d checks passed\n\n", passed, len(results))
}

func init() {
	doctorCmd.Flags().Bool("json", false, "Output results as JSON")
	RootCmd.AddCommand(doctorCmd)
}
