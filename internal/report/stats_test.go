package report

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/smallbiznis/tally/internal/tracking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStatsProducesPDF(t *testing.T) {
	reader, err := New().GenerateStats(context.Background(), StatsReport{
		SiteID:      "1234567890",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Stats: domain.Stats{
			TotalVisits:  120,
			UniqueVisits: 80,
			Period:       domain.Period{Days: 30, Visits: 42},
			Devices:      map[string]int64{"desktop": 30, "mobile": 12},
			Browsers:     map[string]int64{"Chrome 120": 40},
			Countries:    map[string]int64{},
			Referrers:    map[string]int64{"https://news.example.com": 3},
		},
	})
	require.NoError(t, err)

	raw, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

func TestSortedRows(t *testing.T) {
	rows := sortedRows(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, []row{{"c", 5}, {"a", 2}, {"b", 2}}, rows)

	assert.Len(t, sortedRows(map[string]int64{"x": 1, "y": 1}, 0), 2)
	assert.Empty(t, sortedRows(nil, 5))
}
