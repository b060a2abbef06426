package analytics

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// fakeRow assigns values to Scan destinations in order, the way database/sql does for matching types
type fakeRow []interface{}

func (r fakeRow) Scan(dest ...interface{}) error {
	if len(dest) != len(r) {
		return fmt.Errorf("expected %d columns, got %d", len(r), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *time.Time:
			*p = r[i].(time.Time)
		case *int:
			*p = r[i].(int)
		case *int64:
			*p = r[i].(int64)
		case *sql.NullFloat64:
			if r[i] != nil {
				*p = sql.NullFloat64{Float64: r[i].(float64), Valid: true}
			}
		default:
			return fmt.Errorf("unexpected destination %T", d)
		}
	}
	return nil
}

// bucketRow builds a row where every parameter has the same stats, except humidity which is absent
func bucketRow(start time.Time, count int, avg, min, max float64) fakeRow {
	row := fakeRow{start, count}
	for _, p := range Parameters {
		if p == models.ParamHumidity {
			row = append(row, int64(0), nil, nil, nil)
			continue
		}
		row = append(row, int64(count), avg, min, max)
	}
	return row
}

func TestSelectList(t *testing.T) {
	hourly := SelectList(Hourly)
	assert.True(t, strings.HasPrefix(hourly, "date_trunc('hour', created_at AT TIME ZONE 'UTC') AS bucket, COUNT(*) AS count"))
	assert.Contains(t, hourly, "AVG(ph_value)::float8 AS ph_value_avg")
	assert.Contains(t, hourly, "MAX(light_intensity) AS light_intensity_max")
	assert.Contains(t, hourly, "COUNT(air_humidity) AS air_humidity_count")
	assert.Equal(t, 2+4*len(Parameters), strings.Count(hourly, " AS "))

	assert.True(t, strings.HasPrefix(SelectList(Daily), "date_trunc('day', "))
}

func TestScanBucket(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	b, err := ScanBucket(bucketRow(start, 360, 6.456, 6.1, 6.9))
	require.NoError(t, err)

	assert.Equal(t, time.UTC, b.Start.Location())
	assert.True(t, start.Equal(b.Start))
	assert.Equal(t, 360, b.Count)
	assert.Equal(t, Stats{Count: 360, Avg: 6.46, Min: 6.1, Max: 6.9}, b.Parameters[models.ParamPH])
	_, hasHumidity := b.Parameters[models.ParamHumidity]
	assert.False(t, hasHumidity, "parameters without values are omitted")
	assert.Len(t, b.Parameters, len(Parameters)-1)
}

func TestScanBucketPropagatesError(t *testing.T) {
	_, err := ScanBucket(fakeRow{time.Now()})
	assert.Error(t, err)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Hourly, g)

	g, err = ParseGranularity("DAILY")
	require.NoError(t, err)
	assert.Equal(t, Daily, g)

	_, err = ParseGranularity("weekly")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	w, err := ParseWindow("7d", "", "", 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), w.From)
	assert.Equal(t, now, w.To)

	w, err = ParseWindow("", "", "", 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), w.From)

	w, err = ParseWindow("1h", "2026-03-01", "2026-03-02T06:00:00Z", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), w.From, "explicit dates win")
	assert.Equal(t, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), w.To)

	_, err = ParseWindow("2y", "", "", time.Hour, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ParseWindow("", "2026-03-05", "2026-03-01", time.Hour, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ParseWindow("", "yesterday", "", time.Hour, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
