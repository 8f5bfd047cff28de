package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/migration/migrationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var spaces = regexp.MustCompile(`\s+`)

func TestIncrementSiteCountersIsSingleStatement(t *testing.T) {
	db := migrationtest.Open(t)
	dry := db.Session(&gorm.Session{DryRun: true})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var captured []string
	require.NoError(t, db.Callback().Raw().After("gorm:raw").Register("test:capture", func(tx *gorm.DB) {
		captured = append(captured, spaces.ReplaceAllString(strings.TrimSpace(tx.Statement.SQL.String()), " "))
	}))

	_, err := Provide().IncrementSiteCounters(context.Background(), dry, snowflake.ID(7), 1, at)
	require.NoError(t, err)

	require.Len(t, captured, 1, "no read before the write")
	sql := captured[0]
	assert.True(t, strings.HasPrefix(sql, "UPDATE sites SET"), sql)
	assert.Contains(t, sql, "total_visits = total_visits + 1")
	assert.Contains(t, sql, "unique_visits = unique_visits + ?")
	assert.NotContains(t, strings.ToUpper(sql), "SELECT")
}

func TestIncrementSiteCountersAddsToStoredValues(t *testing.T) {
	db := migrationtest.Open(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(
		`INSERT INTO sites (id, total_visits, unique_visits, created_at, updated_at) VALUES (?, 10, 4, ?, ?)`,
		int64(7), at, at,
	).Error)

	repo := Provide()
	rows, err := repo.IncrementSiteCounters(ctx, db, snowflake.ID(7), 1, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	_, err = repo.IncrementSiteCounters(ctx, db, snowflake.ID(7), 0, at)
	require.NoError(t, err)

	counts, err := repo.FindSiteCounts(ctx, db, snowflake.ID(7))
	require.NoError(t, err)
	require.NotNil(t, counts)
	assert.Equal(t, int64(12), counts.TotalVisits)
	assert.Equal(t, int64(5), counts.UniqueVisits)

	rows, err = repo.IncrementSiteCounters(ctx, db, snowflake.ID(99), 1, at)
	require.NoError(t, err)
	assert.Zero(t, rows, "unknown site touches nothing")
}
