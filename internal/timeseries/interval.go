package timeseries

import (
	"fmt"
	"time"

	"github.com/rewired-gh/betpulse/internal/models"
)

const day = 24 * time.Hour

var intervals = map[string]time.Duration{
	"1h":  time.Hour,
	"1d":  day,
	"7d":  7 * day,
	"30d": 30 * day,
}

// ParseInterval maps an aggregation interval name (1h, 1d, 7d, 30d) to its length.
func ParseInterval(name string) (time.Duration, error) {
	d, ok := intervals[name]
	if !ok {
		return 0, fmt.Errorf("unknown interval %q (want 1h, 1d, 7d or 30d)", name)
	}
	return d, nil
}

// Downsample keeps the latest point of every interval-wide bucket. Buckets
// are aligned to the Unix epoch in UTC. points must be ordered oldest first.
func Downsample(points []models.TimeSeriesData, interval time.Duration) []models.TimeSeriesData {
	if interval <= 0 {
		return append([]models.TimeSeriesData(nil), points...)
	}
	out := make([]models.TimeSeriesData, 0, len(points))
	var current time.Time
	for _, p := range points {
		bucket := p.Timestamp.UTC().Truncate(interval)
		if len(out) > 0 && bucket.Equal(current) {
			out[len(out)-1] = p
			continue
		}
		current = bucket
		out = append(out, p)
	}
	return out
}
