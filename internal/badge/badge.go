// Package badge renders visit counts as shields-style SVG badges.
//
// Rendering is pure: the same count and Config always produce the same bytes.
// Invalid styles and colors never fail; they degrade to the flat layout and a
// literal hex color.
package badge

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Style string

const (
	StyleFlat        Style = "flat"
	StyleFlatSquare  Style = "flat-square"
	StylePlastic     Style = "plastic"
	StyleForTheBadge Style = "for-the-badge"
)

const (
	DefaultColor = "4c1"
	DefaultLabel = "Visitas"

	charWidth = 7
	padding   = 10
)

// ParseStyle reports whether value names one of the known styles.
func ParseStyle(value string) (Style, bool) {
	style := Style(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := layouts[style]; ok {
		return style, true
	}
	return StyleFlat, false
}

// Config describes how a badge looks. Empty fields fall back to the
// renderer defaults.
type Config struct {
	Style Style
	Color string
	Label string
	Logo  string
}

// Merge returns c with every non-empty field of override applied on top.
func (c Config) Merge(override Config) Config {
	if s := strings.TrimSpace(string(override.Style)); s != "" {
		c.Style = Style(s)
	}
	if s := strings.TrimSpace(override.Color); s != "" {
		c.Color = s
	}
	if override.Label != "" {
		c.Label = override.Label
	}
	if override.Logo != "" {
		c.Logo = override.Logo
	}
	return c
}

type Renderer struct {
	defaults Config
	palette  map[string]string
}

var defaultRenderer = NewRenderer(Config{}, nil)

// NewRenderer returns a renderer using defaults for empty config fields. The
// extra palette entries extend, and may override, the built-in named colors.
func NewRenderer(defaults Config, extra map[string]string) *Renderer {
	if defaults.Style == "" {
		defaults.Style = StyleFlat
	}
	if defaults.Color == "" {
		defaults.Color = DefaultColor
	}
	if defaults.Label == "" {
		defaults.Label = DefaultLabel
	}

	palette := make(map[string]string, len(namedColors)+len(extra))
	for name, value := range namedColors {
		palette[name] = value
	}
	for name, value := range extra {
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		if !strings.HasPrefix(value, "#") {
			value = "#" + value
		}
		palette[name] = value
	}

	return &Renderer{defaults: defaults, palette: palette}
}

// Render renders count with the package defaults.
func Render(count int64, cfg Config) []byte {
	return defaultRenderer.Render(count, cfg)
}

func (r *Renderer) Render(count int64, cfg Config) []byte {
	cfg = r.defaults.Merge(cfg)

	countText := FormatCount(count)
	m := measurements{
		labelWidth: textWidth(cfg.Label) + padding,
		countWidth: textWidth(countText) + padding,
		color:      html.EscapeString(r.ResolveColor(cfg.Color)),
		label:      cfg.Label,
		count:      countText,
		logo:       cfg.Logo,
	}

	style, _ := ParseStyle(string(cfg.Style))
	return []byte(layouts[style](m))
}

// ResolveColor maps a palette name to its hex value. Anything else is
// treated as a raw hex code.
func (r *Renderer) ResolveColor(color string) string {
	color = strings.TrimSpace(color)
	if value, ok := r.palette[strings.ToLower(color)]; ok {
		return value
	}
	return "#" + strings.TrimPrefix(color, "#")
}

// FormatCount renders n compactly: 42, 1.5K, 2.5M.
func FormatCount(n int64) string {
	if n < 0 {
		n = 0
	}
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		k := fmt.Sprintf("%.1f", float64(n)/1_000)
		if k == "1000.0" {
			return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
		}
		return k + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func textWidth(text string) int {
	return utf8.RuneCountInString(text) * charWidth
}
