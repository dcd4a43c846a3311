// Package color converts the color encodings found in host markup (hex, rgb(),
// CSS names, anything the browser can compute) into a canonical #rrggbb form.
package color

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Default is returned when nothing else resolves.
const Default = "#808080"

// Resolver computes a color the way the host renders it, for tokens such as
// CSS variables or system colors that only the browser can evaluate.
type Resolver interface {
	ComputedColor(ctx context.Context, token string) (string, error)
}

var (
	hexPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	rgbPattern = regexp.MustCompile(`(?i)^rgba?\(\s*(-?\d+(?:\.\d+)?)\s*[,\s]\s*(-?\d+(?:\.\d+)?)\s*[,\s]\s*(-?\d+(?:\.\d+)?)`)
)

// Normalize resolves raw in order: hex, rgb()/rgba(), CSS named color, the
// resolver (may be nil), then Default. The result is always #rrggbb.
func Normalize(ctx context.Context, raw string, resolver Resolver) string {
	if hex, ok := Parse(raw); ok {
		return hex
	}
	token := strings.TrimSpace(raw)
	if token == "" || resolver == nil {
		return Default
	}
	computed, err := resolver.ComputedColor(ctx, token)
	if err != nil {
		return Default
	}
	if hex, ok := Parse(computed); ok {
		return hex
	}
	return Default
}

// Parse handles every encoding that does not need a browser.
func Parse(raw string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", false
	}

	if hexPattern.MatchString(value) {
		return expandHex(value[1:]), true
	}

	if match := rgbPattern.FindStringSubmatch(value); match != nil {
		return fmt.Sprintf("#%02x%02x%02x", channel(match[1]), channel(match[2]), channel(match[3])), true
	}

	if named, ok := colornames.Map[value]; ok {
		return fmt.Sprintf("#%02x%02x%02x", named.R, named.G, named.B), true
	}
	return "", false
}

// IsHex reports whether value is already canonical.
func IsHex(value string) bool {
	return len(value) == 7 && hexPattern.MatchString(value) && value == strings.ToLower(value)
}

func expandHex(digits string) string {
	switch len(digits) {
	case 3, 4:
		return "#" + strings.Repeat(digits[0:1], 2) + strings.Repeat(digits[1:2], 2) + strings.Repeat(digits[2:3], 2)
	default:
		return "#" + digits[:6]
	}
}

func channel(raw string) int {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	switch {
	case value < 0:
		return 0
	case value > 255:
		return 255
	default:
		return int(value + 0.5)
	}
}
