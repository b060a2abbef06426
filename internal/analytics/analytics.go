// Package analytics resolves query windows and hourly or daily reading aggregates.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Granularity is the bucket width of an aggregation
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
)

// ParseGranularity accepts hourly or daily, defaulting to hourly
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case "", Hourly:
		return Hourly, nil
	case Daily:
		return Daily, nil
	}
	return "", apperr.Validation("aggregation must be hourly or daily")
}

// unit is the date_trunc field for g
func (g Granularity) unit() string {
	if g == Daily {
		return "day"
	}
	return "hour"
}

// Ranges accepted by history and aggregate queries
var Ranges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Window is a closed time interval
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow resolves either a named range or explicit start and end dates.
// Explicit dates win over the range. def applies when nothing is given.
func ParseWindow(rangeName, start, end string, def time.Duration, now time.Time) (Window, error) {
	now = now.UTC()
	if start != "" || end != "" {
		w := Window{From: now.Add(-def), To: now}
		if start != "" {
			t, err := parseDate(start)
			if err != nil {
				return Window{}, apperr.Validation("startDate is not a valid date")
			}
			w.From = t
		}
		if end != "" {
			t, err := parseDate(end)
			if err != nil {
				return Window{}, apperr.Validation("endDate is not a valid date")
			}
			w.To = t
		}
		if w.From.After(w.To) {
			return Window{}, apperr.Validation("startDate must be before endDate")
		}
		return w, nil
	}
	if rangeName == "" {
		return Window{From: now.Add(-def), To: now}, nil
	}
	d, ok := Ranges[rangeName]
	if !ok {
		return Window{}, apperr.Validation("range must be one of 1h, 24h, 7d, 30d")
	}
	return Window{From: now.Add(-d), To: now}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Stats summarises one parameter within a bucket
type Stats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Bucket is the aggregate of all readings in one interval
type Bucket struct {
	Start      time.Time                  `json:"timestamp"`
	Count      int                        `json:"count"`
	Parameters map[models.Parameter]Stats `json:"parameters"`
}

// Parameters reported in every bucket
var Parameters = []models.Parameter{
	models.ParamPH,
	models.ParamEC,
	models.ParamTDS,
	models.ParamWaterTemp,
	models.ParamAirTemp,
	models.ParamHumidity,
	models.ParamLight,
}

// Scanner is the part of *sql.Rows that ScanBucket needs
type Scanner interface {
	Scan(dest ...interface{}) error
}

// SelectList is the projection over sensor_readings that produces one row per bucket.
// Columns are bucket, count, then count, avg, min and max for each of Parameters.
func SelectList(g Granularity) string {
	cols := []string{
		fmt.Sprintf("date_trunc('%s', created_at AT TIME ZONE 'UTC') AS bucket", g.unit()),
		"COUNT(*) AS count",
	}
	for _, p := range Parameters {
		cols = append(cols, fmt.Sprintf(
			"COUNT(%[1]s) AS %[1]s_count, AVG(%[1]s)::float8 AS %[1]s_avg, MIN(%[1]s) AS %[1]s_min, MAX(%[1]s) AS %[1]s_max",
			string(p)))
	}
	return strings.Join(cols, ", ")
}

// ScanBucket reads one row shaped by SelectList. Parameters without values are omitted.
func ScanBucket(row Scanner) (Bucket, error) {
	var (
		b      Bucket
		counts = make([]int64, len(Parameters))
		stats  = make([][3]sql.NullFloat64, len(Parameters))
	)
	dest := []interface{}{&b.Start, &b.Count}
	for i := range Parameters {
		dest = append(dest, &counts[i], &stats[i][0], &stats[i][1], &stats[i][2])
	}
	if err := row.Scan(dest...); err != nil {
		return Bucket{}, err
	}

	b.Start = b.Start.UTC()
	b.Parameters = make(map[models.Parameter]Stats, len(Parameters))
	for i, p := range Parameters {
		if counts[i] == 0 {
			continue
		}
		b.Parameters[p] = Stats{
			Count: int(counts[i]),
			Avg:   round2(stats[i][0].Float64),
			Min:   stats[i][1].Float64,
			Max:   stats[i][2].Float64,
		}
	}
	return b, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
