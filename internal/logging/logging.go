// Package logging constructs the process-wide zap.Logger the coordinator's
// components share, replacing the teacher's fmt.Printf/fmt.Println
// one-liners with structured fields on the scheduler and flush hot paths.
// Built the same way utils/config guards its singleton: a package-level
// instance set up exactly once.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.Logger
	once     sync.Once
)

// Get returns the process-wide logger, building a production zap.Logger the
// first time it is called. Panics if zap's own config fails to build,
// mirroring utils/config's loadConfig treating its own setup as fatal.
func Get() *zap.Logger {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			panic("logging: failed to build zap logger: " + err.Error())
		}
		instance = l
	})
	return instance
}

// Sugared returns the shared logger's SugaredLogger, for call sites that
// want the teacher's printf-style ergonomics without giving up structured
// output entirely.
func Sugared() *zap.SugaredLogger {
	return Get().Sugar()
}

// Sync flushes any buffered log entries. Call once on clean shutdown.
func Sync() error {
	return Get().Sync()
}
