package badge

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

type measurements struct {
	labelWidth int
	countWidth int
	color      string
	label      string
	count      string
	logo       string
}

func (m measurements) totalWidth() int {
	return m.labelWidth + m.countWidth
}

type layout func(m measurements) string

var layouts = map[Style]layout{
	StyleFlat:        flat,
	StyleFlatSquare:  flatSquare,
	StylePlastic:     plastic,
	StyleForTheBadge: forTheBadge,
}

const fontFamily = "Verdana,Geneva,DejaVu Sans,sans-serif"

func header(width, height int, label, count string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" role="img" aria-label="%s: %s">
  <title>%s: %s</title>
`, width, height, label, count, label, count)
}

func flat(m measurements) string {
	label, count := html.EscapeString(m.label), html.EscapeString(m.count)
	total := m.totalWidth()

	var b strings.Builder
	b.WriteString(header(total, 20, label, count))
	fmt.Fprintf(&b, `  <linearGradient id="s" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="%d" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="%d" height="20" fill="#555"/>
    <rect x="%d" width="%d" height="20" fill="%s"/>
    <rect width="%d" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="%s" font-size="110">
`, total, m.labelWidth, m.labelWidth, m.countWidth, m.color, total, fontFamily)

	// Only the flat layout has room for a leading logo glyph.
	if m.logo != "" {
		fmt.Fprintf(&b, `    <text x="%s" y="150" fill="#fff" transform="scale(.1)" textLength="%d">%s %s</text>
`, half(m.labelWidth, -10), (m.labelWidth-20)*10, html.EscapeString(m.logo), label)
	} else {
		fmt.Fprintf(&b, `    <text x="%s" y="150" fill="#fff" transform="scale(.1)" textLength="%d">%s</text>
`, half(m.labelWidth, 0), (m.labelWidth-10)*10, label)
	}
	fmt.Fprintf(&b, `    <text x="%s" y="150" fill="#fff" transform="scale(.1)" textLength="%d">%s</text>
  </g>
</svg>`, half(m.countWidth, m.labelWidth), (m.countWidth-10)*10, count)

	return b.String()
}

func flatSquare(m measurements) string {
	label, count := html.EscapeString(m.label), html.EscapeString(m.count)

	var b strings.Builder
	b.WriteString(header(m.totalWidth(), 20, label, count))
	fmt.Fprintf(&b, `  <g shape-rendering="crispEdges">
    <rect width="%d" height="20" fill="#555"/>
    <rect x="%d" width="%d" height="20" fill="%s"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="%s" font-size="110">
    <text x="%s" y="140" transform="scale(.1)" textLength="%d">%s</text>
    <text x="%s" y="140" transform="scale(.1)" textLength="%d">%s</text>
  </g>
</svg>`,
		m.labelWidth, m.labelWidth, m.countWidth, m.color, fontFamily,
		half(m.labelWidth, 0), (m.labelWidth-10)*10, label,
		half(m.countWidth, m.labelWidth), (m.countWidth-10)*10, count)

	return b.String()
}

func plastic(m measurements) string {
	label, count := html.EscapeString(m.label), html.EscapeString(m.count)
	total := m.totalWidth()

	var b strings.Builder
	b.WriteString(header(total, 18, label, count))
	fmt.Fprintf(&b, `  <linearGradient id="s" x2="0" y2="100%%">
    <stop offset="0" stop-color="#fff" stop-opacity=".7"/>
    <stop offset=".1" stop-color="#aaa" stop-opacity=".1"/>
    <stop offset=".9" stop-color="#000" stop-opacity=".3"/>
    <stop offset="1" stop-color="#000" stop-opacity=".5"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="%d" height="18" rx="4" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="%d" height="18" fill="#555"/>
    <rect x="%d" width="%d" height="18" fill="%s"/>
    <rect width="%d" height="18" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="%s" font-size="110">
    <text x="%s" y="140" transform="scale(.1)" textLength="%d">%s</text>
    <text x="%s" y="140" transform="scale(.1)" textLength="%d">%s</text>
  </g>
</svg>`,
		total, m.labelWidth, m.labelWidth, m.countWidth, m.color, total, fontFamily,
		half(m.labelWidth, 0), (m.labelWidth-10)*10, label,
		half(m.countWidth, m.labelWidth), (m.countWidth-10)*10, count)

	return b.String()
}

func forTheBadge(m measurements) string {
	label := html.EscapeString(strings.ToUpper(m.label))
	count := html.EscapeString(m.count)
	labelBox := m.labelWidth + 10
	countBox := m.countWidth + 10

	var b strings.Builder
	b.WriteString(header(m.totalWidth()+20, 28, html.EscapeString(m.label), count))
	fmt.Fprintf(&b, `  <g shape-rendering="crispEdges">
    <rect width="%d" height="28" fill="#555"/>
    <rect x="%d" width="%d" height="28" fill="%s"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="%s" font-size="100" font-weight="bold">
    <text x="%s" y="175" transform="scale(.1)" textLength="%d">%s</text>
    <text x="%s" y="175" transform="scale(.1)" textLength="%d">%s</text>
  </g>
</svg>`,
		labelBox, labelBox, countBox, m.color, fontFamily,
		half(labelBox, 0), m.labelWidth*10, label,
		half(countBox, labelBox), m.countWidth*10, count)

	return b.String()
}

// half returns offset + width/2 formatted without a trailing ".0".
func half(width, offset int) string {
	return strconv.FormatFloat(float64(offset)+float64(width)/2, 'f', -1, 64)
}
