package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/haven/internal/models"
	"github.com/seuros/haven/internal/tenant"
)

type fakeOrgStore struct {
	orgs    map[string]*models.Organization
	err     error
	domains map[string]string
}

func newFakeOrgStore() *fakeOrgStore {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeOrgStore{
		orgs: map[string]*models.Organization{
			"acme": {
				ID:           uuid.MustParse("6f1c7a52-3f55-4f1e-9d3b-0c6f6b3a8f11"),
				Slug:         "acme",
				BusinessName: "Acme Homes",
				Domain:       strPtr("acme-homes.com"),
				PrimaryColor: strPtr("#1e3a5f"),
				IsActive:     true,
				Services:     models.PropertyServices{Rentals: true},
				CreatedAt:    created,
				UpdatedAt:    created,
			},
			"pilot": {
				ID:           uuid.MustParse("0b5d0f8e-8c1a-4a47-9d0c-2f3b8a7e6c21"),
				Slug:         "pilot",
				BusinessName: "Pilot Realty",
				IsActive:     false,
				IsComped:     true,
				Services:     models.PropertyServices{Sales: true, HolidayRentals: true},
				CreatedAt:    created,
				UpdatedAt:    created,
			},
		},
		domains: map[string]string{},
	}
}

func (f *fakeOrgStore) Get(_ context.Context, slug string) (*models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	org, ok := f.orgs[slug]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return org, nil
}

func (f *fakeOrgStore) List(_ context.Context, includeInactive bool) ([]models.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Organization
	for _, slug := range []string{"acme", "pilot"} {
		if org, ok := f.orgs[slug]; ok && (includeInactive || org.IsActive) {
			out = append(out, *org)
		}
	}
	return out, nil
}

func (f *fakeOrgStore) UpdateServices(_ context.Context, slug string, svc models.PropertyService, enabled bool) (*models.Organization, error) {
	org, ok := f.orgs[slug]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	next, err := org.Services.Toggle(svc, enabled)
	if err != nil {
		return nil, err
	}
	org.Services = next
	return org, nil
}

func (f *fakeOrgStore) SetActive(_ context.Context, slug string, active bool) error {
	org, ok := f.orgs[slug]
	if !ok {
		return tenant.ErrNotFound
	}
	org.IsActive = active
	return nil
}

func (f *fakeOrgStore) SetDomain(_ context.Context, slug, domain string) error {
	if _, ok := f.orgs[slug]; !ok {
		return tenant.ErrNotFound
	}
	f.domains[slug] = domain
	return nil
}

func stubTerminal(t *testing.T, stdout, stdin bool) {
	t.Helper()
	origOut, origIn := stdoutIsTerminal, stdinIsTerminal
	stdoutIsTerminal = func() bool { return stdout }
	stdinIsTerminal = func() bool { return stdin }
	t.Cleanup(func() {
		stdoutIsTerminal, stdinIsTerminal = origOut, origIn
	})
}

func TestResolveFormat(t *testing.T) {
	stubTerminal(t, true, true)
	assert.Equal(t, formatTable, resolveFormat(""))
	assert.Equal(t, formatCSV, resolveFormat(" CSV "))

	stubTerminal(t, false, false)
	assert.Equal(t, formatJSON, resolveFormat(""))
}

func TestOrgListFormats(t *testing.T) {
	store := newFakeOrgStore()
	ctx := context.Background()

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runOrgList(ctx, &buf, store, true, formatTable))
		out := buf.String()
		assert.Contains(t, out, "SLUG")
		assert.Contains(t, out, "acme-homes.com")
		assert.Contains(t, out, "sales,holiday_rentals")
	})

	t.Run("json hides inactive by default", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runOrgList(ctx, &buf, store, false, formatJSON))
		var got []models.Organization
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "acme", got[0].Slug)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runOrgList(ctx, &buf, store, true, formatCSV))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "slug", records[0][0])
		assert.Equal(t, []string{"pilot", "Pilot Realty", "", "sales;holiday_rentals", "false", "true", "2024-03-01T09:00:00Z"}, records[2])
	})

	t.Run("empty json is an array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runOrgList(ctx, &buf, &fakeOrgStore{orgs: map[string]*models.Organization{}}, false, formatJSON))
		assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
	})

	t.Run("invalid format", func(t *testing.T) {
		assert.EqualError(t, runOrgList(ctx, &bytes.Buffer{}, store, false, "xml"), "invalid format: xml")
	})

	t.Run("store error", func(t *testing.T) {
		err := runOrgList(ctx, &bytes.Buffer{}, &fakeOrgStore{err: errors.New("boom")}, false, formatJSON)
		assert.ErrorContains(t, err, "failed to list organizations")
	})
}

func TestOrgShow(t *testing.T) {
	store := newFakeOrgStore()
	var buf bytes.Buffer

	require.NoError(t, runOrgShow(context.Background(), &buf, store, " ACME ", formatTable))
	assert.Regexp(t, `Domain:\s+acme-homes.com`, buf.String())
	assert.Regexp(t, `Secondary color:\s+\(none\)`, buf.String())

	err := runOrgShow(context.Background(), &buf, store, "ghost", formatTable)
	assert.EqualError(t, err, "organization 'ghost' not found")
}

func TestOrgServices(t *testing.T) {
	ctx := context.Background()

	t.Run("enable", func(t *testing.T) {
		store := newFakeOrgStore()
		var buf bytes.Buffer
		require.NoError(t, runOrgServices(ctx, &buf, store, "acme", "holiday-rentals", "on"))
		assert.Equal(t, "✓ acme: rentals, holiday_rentals\n", buf.String())
	})

	t.Run("last service stays on", func(t *testing.T) {
		store := newFakeOrgStore()
		err := runOrgServices(ctx, &bytes.Buffer{}, store, "acme", "rentals", "off")
		assert.ErrorIs(t, err, models.ErrLastPropertyService)
		assert.True(t, store.orgs["acme"].Services.Rentals)
	})

	t.Run("bad input", func(t *testing.T) {
		store := newFakeOrgStore()
		assert.ErrorIs(t, runOrgServices(ctx, &bytes.Buffer{}, store, "acme", "timeshare", "on"), models.ErrUnknownPropertyService)
		assert.ErrorContains(t, runOrgServices(ctx, &bytes.Buffer{}, store, "acme", "sales", "maybe"), "state must be on or off")
		assert.EqualError(t, runOrgServices(ctx, &bytes.Buffer{}, store, "ghost", "sales", "on"), "organization 'ghost' not found")
	})
}

func TestOrgDeactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to prompt without a terminal", func(t *testing.T) {
		stubTerminal(t, false, false)
		store := newFakeOrgStore()
		err := runOrgSetActive(ctx, &bytes.Buffer{}, strings.NewReader("yes\n"), store, "acme", false, false)
		assert.ErrorContains(t, err, "--force")
		assert.True(t, store.orgs["acme"].IsActive)
	})

	t.Run("confirmed", func(t *testing.T) {
		stubTerminal(t, true, true)
		store := newFakeOrgStore()
		var buf bytes.Buffer
		require.NoError(t, runOrgSetActive(ctx, &buf, strings.NewReader("yes\n"), store, "acme", false, false))
		assert.False(t, store.orgs["acme"].IsActive)
		assert.Contains(t, buf.String(), "✓ Organization 'acme' deactivated")
	})

	t.Run("declined", func(t *testing.T) {
		stubTerminal(t, true, true)
		store := newFakeOrgStore()
		var buf bytes.Buffer
		require.NoError(t, runOrgSetActive(ctx, &buf, strings.NewReader("n\n"), store, "acme", false, false))
		assert.True(t, store.orgs["acme"].IsActive)
		assert.Contains(t, buf.String(), "Deactivation cancelled")
	})

	t.Run("forced", func(t *testing.T) {
		stubTerminal(t, false, false)
		store := newFakeOrgStore()
		require.NoError(t, runOrgSetActive(ctx, &bytes.Buffer{}, strings.NewReader(""), store, "acme", false, true))
		assert.False(t, store.orgs["acme"].IsActive)
	})

	t.Run("activate never prompts", func(t *testing.T) {
		stubTerminal(t, false, false)
		store := newFakeOrgStore()
		require.NoError(t, runOrgSetActive(ctx, &bytes.Buffer{}, strings.NewReader(""), store, "pilot", true, false))
		assert.True(t, store.orgs["pilot"].IsActive)
	})
}

func TestOrgSetDomain(t *testing.T) {
	ctx := context.Background()
	store := newFakeOrgStore()

	var buf bytes.Buffer
	require.NoError(t, runOrgSetDomain(ctx, &buf, store, "acme", "HTTPS://Acme-Homes.com/", false))
	assert.Equal(t, "acme-homes.com", store.domains["acme"])
	assert.Contains(t, buf.String(), "now answers on acme-homes.com")

	buf.Reset()
	require.NoError(t, runOrgSetDomain(ctx, &buf, store, "acme", "", true))
	assert.Equal(t, "", store.domains["acme"])
	assert.Contains(t, buf.String(), "Custom domain cleared")

	assert.Error(t, runOrgSetDomain(ctx, &buf, store, "acme", "acme-homes.com/listings", false))
	assert.Error(t, runOrgSetDomain(ctx, &buf, store, "acme", "*.acme-homes.com", false))
	assert.EqualError(t, runOrgSetDomain(ctx, &buf, store, "ghost", "ghost.com", false), "organization 'ghost' not found")
}

func strPtr(s string) *string { return &s }
