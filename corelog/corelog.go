// Package corelog is the one place this module touches a logging library.
// It mirrors the original system's mylog.Logger wrapper, whose call sites
// bind contextual fields once (server_logger.bind(server_name=...)) and log
// through the bound logger from then on, rather than formatting fields into
// every message by hand.
package corelog

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once projectLogger
	mu   sync.Mutex
)

type projectLogger struct {
	base zerolog.Logger
	set  bool
}

func base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !once.set {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		once.base = zerolog.New(writer).With().Timestamp().Logger()
		once.set = true
	}
	return once.base
}

// Bind returns a logger with the given field permanently attached, the way
// craq_server.py binds server_name once and reuses the bound logger.
func Bind(field, value string) zerolog.Logger {
	return base().With().Str(field, value).Logger()
}

// Component is a convenience Bind for the recurring "which subsystem" field.
func Component(name string) zerolog.Logger {
	return Bind("component", name)
}
