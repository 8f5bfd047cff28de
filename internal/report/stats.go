package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const topReferrers = 10

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStats(ctx context.Context, data StatsReport) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	stats := data.Stats

	m.AddRow(12,
		text.NewCol(12, "Visit statistics", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(16,
		col.New(6).Add(
			text.New("Site: "+data.SiteID, props.Text{Top: 0}),
			text.New("Generated: "+data.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Top: 5}),
		),
		col.New(6),
	)

	// Totals
	m.AddRow(10,
		text.NewCol(4, "Total visits", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, "Unique visitors", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, fmt.Sprintf("Last %d days", stats.Period.Days), props.Text{Style: fontstyle.Bold, Size: 10}),
	)
	m.AddRow(12,
		text.NewCol(4, strconv.FormatInt(stats.TotalVisits, 10), props.Text{Size: 16}),
		text.NewCol(4, strconv.FormatInt(stats.UniqueVisits, 10), props.Text{Size: 16}),
		text.NewCol(4, strconv.FormatInt(stats.Period.Visits, 10), props.Text{Size: 16}),
	)

	addTable(m, "Devices", "Device", sortedRows(stats.Devices, 0))
	addTable(m, "Browsers", "Browser", sortedRows(stats.Browsers, 0))
	addTable(m, "Countries", "Country", sortedRows(stats.Countries, 0))
	addTable(m, "Top referrers", "Referrer", sortedRows(stats.Referrers, topReferrers))

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

type row struct {
	key   string
	count int64
}

// sortedRows orders entries by count descending then key; limit <= 0 keeps all.
func sortedRows(values map[string]int64, limit int) []row {
	rows := make([]row, 0, len(values))
	for key, count := range values {
		rows = append(rows, row{key: key, count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func addTable(m core.Maroto, title, header string, rows []row) {
	m.AddRow(14,
		text.NewCol(12, title, props.Text{
			Size:  13,
			Style: fontstyle.Bold,
			Top:   6,
		}),
	)
	m.AddRow(8,
		text.NewCol(9, header, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Visits", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if len(rows) == 0 {
		m.AddRow(7, text.NewCol(12, "No data for this period", props.Text{Size: 9}))
		return
	}
	for _, r := range rows {
		m.AddRow(7,
			text.NewCol(9, r.key, props.Text{Size: 9}),
			text.NewCol(3, strconv.FormatInt(r.count, 10), props.Text{Size: 9, Align: align.Right}),
		)
	}
}
