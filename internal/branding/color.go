package branding

import (
	"errors"
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Default brand colors used when an organization has none configured.
const (
	DefaultPrimary   = "#1e3a5f"
	DefaultSecondary = "#f0f4f8"
)

// Foreground tokens picked by relative luminance.
const (
	ForegroundBlack = "0 0% 0%"
	ForegroundWhite = "0 0% 100%"
)

// LuminanceThreshold: strictly above picks the black foreground.
const LuminanceThreshold = 0.5

var ErrInvalidHex = errors.New("invalid hex color")

// ParseHex accepts "#rgb" and "#rrggbb" (case-insensitive).
func ParseHex(hex string) (colorful.Color, error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") || (len(hex) != 4 && len(hex) != 7) {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidHex, hex)
	}
	c, err := colorful.Hex(strings.ToLower(hex))
	if err != nil {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidHex, hex)
	}
	return c, nil
}

// HSLToken renders the color as "H S% L%" with each component rounded to an integer.
func HSLToken(c colorful.Color) string {
	h, s, l := c.Hsl()
	return fmt.Sprintf("%d %d%% %d%%", int(math.Round(h)), int(math.Round(s*100)), int(math.Round(l*100)))
}

// HexToHSL converts a hex color to its "H S% L%" token.
func HexToHSL(hex string) (string, error) {
	c, err := ParseHex(hex)
	if err != nil {
		return "", err
	}
	return HSLToken(c), nil
}

// RelativeLuminance uses the sRGB linearization with the 0.03928 breakpoint.
func RelativeLuminance(c colorful.Color) float64 {
	return 0.2126*linearize(c.R) + 0.7152*linearize(c.G) + 0.0722*linearize(c.B)
}

func linearize(channel float64) float64 {
	if channel <= 0.03928 {
		return channel / 12.92
	}
	return math.Pow((channel+0.055)/1.055, 2.4)
}

// ForegroundFor returns the foreground token readable on a background of the given
// luminance.
func ForegroundFor(luminance float64) string {
	if luminance > LuminanceThreshold {
		return ForegroundBlack
	}
	return ForegroundWhite
}
