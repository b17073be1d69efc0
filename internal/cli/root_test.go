package cli

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/haven/internal/config"
	"github.com/seuros/haven/internal/database"
)

// useMockDB points the shared pool at sqlmock for the duration of a test.
func useMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	original := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = original
		_ = db.Close()
	})
	return mock
}

func TestRootRegistersCommands(t *testing.T) {
	want := []string{"serve", "healthcheck", "doctor", "org", "flag", "domain", "dev"}
	for _, name := range want {
		cmd, _, err := RootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"database-url", "port", "data-dir", "self-upgrade", "self-upgrade-check", "self-upgrade-yes"} {
		assert.NotNil(t, RootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/haven")
	t.Setenv("PORT", "4100")

	original := [3]string{flagDatabaseURL, flagPort, flagDataDir}
	t.Cleanup(func() { flagDatabaseURL, flagPort, flagDataDir = original[0], original[1], original[2] })

	flagDatabaseURL, flagPort, flagDataDir = "postgres://flag/haven", "", "/tmp/haven"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/haven", cfg.DatabaseURL)
	assert.Equal(t, "4100", cfg.Port)
	assert.Equal(t, "/tmp/haven", cfg.DataDir)
}

func TestWithDatabaseUsesExistingPool(t *testing.T) {
	mock := useMockDB(t)
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	called := false
	err := withDatabase(func(ctx context.Context, cfg *config.Config) error {
		called = true
		assert.NotNil(t, cfg)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		_, err := database.DB.ExecContext(ctx, "SELECT 1")
		return err
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithDatabaseRequiresURL(t *testing.T) {
	original := database.DB
	database.DB = nil
	t.Cleanup(func() { database.DB = original })

	t.Setenv("DATABASE_URL", "")
	origFlag := flagDatabaseURL
	flagDatabaseURL = ""
	t.Cleanup(func() { flagDatabaseURL = origFlag })

	err := withDatabase(func(context.Context, *config.Config) error {
		t.Fatal("callback must not run without a database")
		return nil
	})
	assert.ErrorIs(t, err, errDatabaseURLRequired)
}
