// Package safego spawns goroutines that recover and log panics instead of
// taking the process down. Background cache refreshes run through it.
package safego

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with
// the goroutine name and a stack trace.
func Go(log zerolog.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("goroutine", name).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered in goroutine")
			}
		}()
		fn()
	}()
}
