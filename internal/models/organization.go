package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PropertyService is a listing category an organization offers.
type PropertyService string

const (
	ServiceSales          PropertyService = "sales"
	ServiceRentals        PropertyService = "rentals"
	ServiceHolidayRentals PropertyService = "holiday_rentals"
)

// AllPropertyServices lists services in display order.
var AllPropertyServices = []PropertyService{ServiceSales, ServiceRentals, ServiceHolidayRentals}

var (
	ErrUnknownPropertyService = errors.New("unknown property service")
	ErrLastPropertyService    = errors.New("at least one property service must remain enabled")
)

// ParsePropertyService accepts the stored name plus the hyphenated form used in URLs.
func ParsePropertyService(raw string) (PropertyService, error) {
	s := PropertyService(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	for _, known := range AllPropertyServices {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPropertyService, raw)
}

// PropertyServices is the set of services an organization offers.
// A valid set is never empty.
type PropertyServices struct {
	Sales          bool `json:"sales"`
	Rentals        bool `json:"rentals"`
	HolidayRentals bool `json:"holiday_rentals"`
}

// NewPropertyServices builds a set from stored names. Unknown names are an error and
// an empty result is rejected.
func NewPropertyServices(names []string) (PropertyServices, error) {
	var set PropertyServices
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		svc, err := ParsePropertyService(name)
		if err != nil {
			return PropertyServices{}, err
		}
		set = set.with(svc, true)
	}
	if set.Count() == 0 {
		return PropertyServices{}, ErrLastPropertyService
	}
	return set, nil
}

// Has reports whether svc is enabled.
func (p PropertyServices) Has(svc PropertyService) bool {
	switch svc {
	case ServiceSales:
		return p.Sales
	case ServiceRentals:
		return p.Rentals
	case ServiceHolidayRentals:
		return p.HolidayRentals
	}
	return false
}

// Count returns the number of enabled services.
func (p PropertyServices) Count() int {
	n := 0
	for _, svc := range AllPropertyServices {
		if p.Has(svc) {
			n++
		}
	}
	return n
}

// Names returns enabled service names in display order.
func (p PropertyServices) Names() []string {
	names := make([]string, 0, 3)
	for _, svc := range AllPropertyServices {
		if p.Has(svc) {
			names = append(names, string(svc))
		}
	}
	return names
}

// Toggle returns a copy with svc set to enabled. Disabling the last enabled service
// fails with ErrLastPropertyService and leaves the receiver unchanged.
func (p PropertyServices) Toggle(svc PropertyService, enabled bool) (PropertyServices, error) {
	if _, err := ParsePropertyService(string(svc)); err != nil {
		return p, err
	}
	next := p.with(svc, enabled)
	if next.Count() == 0 {
		return p, ErrLastPropertyService
	}
	return next, nil
}

func (p PropertyServices) with(svc PropertyService, enabled bool) PropertyServices {
	switch svc {
	case ServiceSales:
		p.Sales = enabled
	case ServiceRentals:
		p.Rentals = enabled
	case ServiceHolidayRentals:
		p.HolidayRentals = enabled
	}
	return p
}

// Organization is a tenant: it owns listings, branding, users and a public site.
type Organization struct {
	ID             uuid.UUID        `json:"id"`
	Slug           string           `json:"slug"`
	Domain         *string          `json:"domain,omitempty"`
	BusinessName   string           `json:"business_name"`
	LogoURL        *string          `json:"logo_url,omitempty"`
	FaviconURL     *string          `json:"favicon_url,omitempty"`
	PrimaryColor   *string          `json:"primary_color,omitempty"`
	SecondaryColor *string          `json:"secondary_color,omitempty"`
	ContactEmail   *string          `json:"contact_email,omitempty"`
	ContactPhone   *string          `json:"contact_phone,omitempty"`
	IsActive       bool             `json:"is_active"`
	IsComped       bool             `json:"is_comped"`
	HidePublicSite bool             `json:"hide_public_site"`
	Services       PropertyServices `json:"property_services"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PublicOrganization is the subset of an organization safe to expose on public sites.
type PublicOrganization struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	BusinessName string    `json:"business_name"`
	LogoURL      string    `json:"logo_url,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Services     []string  `json:"property_services"`
}

// Public returns the public projection of o.
func (o *Organization) Public() PublicOrganization {
	return PublicOrganization{
		ID:           o.ID,
		Slug:         o.Slug,
		BusinessName: o.BusinessName,
		LogoURL:      Deref(o.LogoURL),
		ContactEmail: Deref(o.ContactEmail),
		ContactPhone: Deref(o.ContactPhone),
		Services:     o.Services.Names(),
	}
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
