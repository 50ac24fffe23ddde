package util

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogProgressFunc adds to the progress. It can be called concurrently;
// negative values are ignored.
type LogProgressFunc func(addProgress int)

// LogProgress returns a function that accumulates progress towards total and
// logs at every tenth of the way, or when progress resumes after a silence of
// more than noDataLogDuration.
func LogProgress(log zerolog.Logger, msg string, total int, noDataLogDuration time.Duration) LogProgressFunc {
	start := time.Now()
	lastLog := start
	current := 0
	nextTick := 0
	step := total / 10
	if step < 1 {
		step = 1
	}

	var mu sync.Mutex
	return func(add int) {
		if add < 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		current += add
		now := time.Now()
		if current < nextTick && now.Sub(lastLog) < noDataLogDuration {
			return
		}
		for nextTick <= current {
			nextTick += step
		}
		lastLog = now

		percentage := float64(100)
		if total > 0 {
			percentage = float64(current) / float64(total) * 100
		}
		log.Info().Msgf("%s progress %d/%d (%.1f%%) total time %s",
			msg, current, total, percentage, now.Sub(start).Round(time.Second))
	}
}
