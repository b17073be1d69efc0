// Package content resolves per-tenant copy and feature flags through short-lived
// read-through caches. Reads here are auxiliary: failures degrade to defaults.
package content

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/models"
)

// Store is the backend for overrides and flags.
type Store interface {
	// FetchOverrides returns key -> value for an organization and locale. uuid.Nil
	// fetches the platform-wide rows only.
	FetchOverrides(ctx context.Context, orgID uuid.UUID, locale string) (map[string]string, error)
	// FetchFlag returns nil, nil when no flag with this key exists.
	FetchFlag(ctx context.Context, key string) (*models.FeatureFlag, error)
}

// SQLStore reads overrides through get_content_overrides and flags from feature_flags.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) FetchOverrides(ctx context.Context, orgID uuid.UUID, locale string) (map[string]string, error) {
	var org any
	if orgID != uuid.Nil {
		org = orgID
	}
	rows, err := s.db.QueryContext(ctx, `SELECT content_key, value FROM get_content_overrides($1, $2)`, org, locale)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

const flagColumns = `key, name, description, default_state, is_active, updated_at`

func scanFlag(row interface{ Scan(...any) error }) (*models.FeatureFlag, error) {
	var f models.FeatureFlag
	if err := row.Scan(&f.Key, &f.Name, &f.Description, &f.DefaultState, &f.IsActive, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLStore) FetchFlag(ctx context.Context, key string) (*models.FeatureFlag, error) {
	f, err := scanFlag(s.db.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM feature_flags WHERE key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}
	return f, nil
}

// ListFlags returns every flag ordered by key.
func (s *SQLStore) ListFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+flagColumns+` FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var flags []models.FeatureFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, *f)
	}
	return flags, rows.Err()
}

// ErrUnknownFlag is returned when updating a flag that does not exist.
var ErrUnknownFlag = errors.New("unknown feature flag")

// SetFlagState sets default_state.
func (s *SQLStore) SetFlagState(ctx context.Context, key string, on bool) error {
	return s.updateFlag(ctx, `UPDATE feature_flags SET default_state = $1, updated_at = NOW() WHERE key = $2`, on, key)
}

// SetFlagActive flips the kill switch.
func (s *SQLStore) SetFlagActive(ctx context.Context, key string, active bool) error {
	return s.updateFlag(ctx, `UPDATE feature_flags SET is_active = $1, updated_at = NOW() WHERE key = $2`, active, key)
}

func (s *SQLStore) updateFlag(ctx context.Context, query string, value bool, key string) error {
	res, err := s.db.ExecContext(ctx, query, value, key)
	if err != nil {
		return database.MapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownFlag
	}
	return nil
}
