// Package tenant resolves the organization a request or navigation belongs to.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/seuros/haven/internal/database"
	"github.com/seuros/haven/internal/models"
)

// ErrNotFound means no active organization matched. It is an outcome, not a failure.
var ErrNotFound = errors.New("organization not found")

// Store is the tenant lookup surface the resolver depends on.
type Store interface {
	FindBySlug(ctx context.Context, slug string) (*models.Organization, error)
	FindByDomain(ctx context.Context, domain string) (*models.Organization, error)
}

// SQLStore reads organizations from Postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const organizationColumns = `id, slug, business_name, domain, logo_url, favicon_url,
	primary_color, secondary_color, contact_email, contact_phone,
	is_active, is_comped, hide_public_site,
	array_to_string(property_services, ','), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org      models.Organization
		services string
	)
	err := row.Scan(
		&org.ID, &org.Slug, &org.BusinessName, &org.Domain, &org.LogoURL, &org.FaviconURL,
		&org.PrimaryColor, &org.SecondaryColor, &org.ContactEmail, &org.ContactPhone,
		&org.IsActive, &org.IsComped, &org.HidePublicSite,
		&services, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.Services, err = models.NewPropertyServices(strings.Split(services, ","))
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", org.Slug, err)
	}
	return &org, nil
}

func (s *SQLStore) findOne(ctx context.Context, where string, arg any) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE ` + where + ` AND is_active = true`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.MapError(err)
	}
	return org, nil
}

// FindBySlug looks up an active organization by exact slug.
func (s *SQLStore) FindBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return s.findOne(ctx, `slug = $1`, slug)
}

// FindByDomain looks up an active organization by exact custom domain.
func (s *SQLStore) FindByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	return s.findOne(ctx, `domain = $1`, domain)
}

// Get returns an organization by slug regardless of is_active.
func (s *SQLStore) Get(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.MapError(err)
	}
	return org, nil
}

// List returns organizations ordered by slug.
func (s *SQLStore) List(ctx context.Context, includeInactive bool) ([]models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations`
	if !includeInactive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY slug`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var orgs []models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

// UpdateServices toggles one property service. The row is locked while the new set
// is computed so two concurrent toggles cannot leave the set empty.
func (s *SQLStore) UpdateServices(ctx context.Context, slug string, svc models.PropertyService, enabled bool) (*models.Organization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	org, err := scanOrganization(tx.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = $1 FOR UPDATE`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	next, err := org.Services.Toggle(svc, enabled)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE organizations SET property_services = $1 WHERE id = $2`,
		pq.Array(next.Names()), org.ID,
	); err != nil {
		return nil, database.MapError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	org.Services = next
	return org, nil
}

// SetActive soft-enables or soft-disables an organization.
func (s *SQLStore) SetActive(ctx context.Context, slug string, active bool) error {
	return s.execOne(ctx, `UPDATE organizations SET is_active = $1 WHERE slug = $2`, active, slug)
}

// SetDomain assigns a custom domain. An empty domain clears it.
func (s *SQLStore) SetDomain(ctx context.Context, slug, domain string) error {
	var value *string
	if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
		value = &d
	}
	return s.execOne(ctx, `UPDATE organizations SET domain = $1 WHERE slug = $2`, value, slug)
}

func (s *SQLStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return database.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
