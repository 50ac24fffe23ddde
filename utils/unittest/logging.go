package unittest

import (
	"flag"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var verbose = flag.Bool("vv", false, "print debugging logs")

func LogVerbose() {
	*verbose = true
}

// Logger returns a zerolog
// use -vv flag to print debugging logs for tests
func Logger() zerolog.Logger {
	writer := io.Discard

	if *verbose {
		writer = os.Stderr
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return log
}

// HookedLogger returns a logger at debug level that counts every message it
// writes, per level.
func HookedLogger() (zerolog.Logger, *LoggerHook) {
	hook := NewLoggerHook()
	return Logger().Hook(hook), hook
}

// LoggerHook is a zerolog.Hook that counts messages per level.
type LoggerHook struct {
	mu     sync.Mutex
	counts map[zerolog.Level]int
}

var _ zerolog.Hook = (*LoggerHook)(nil)

func NewLoggerHook() *LoggerHook {
	return &LoggerHook{counts: make(map[zerolog.Level]int)}
}

func (h *LoggerHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[level]++
}

// Count returns the number of messages logged at the given level.
func (h *LoggerHook) Count(level zerolog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[level]
}
