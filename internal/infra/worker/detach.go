package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Detach runs fn in the background on a context that outlives ctx. Errors and
// panics are logged and discarded: callers use it for fire-and-forget side
// effects such as touching a last-used timestamp.
func Detach(ctx context.Context, log *zerolog.Logger, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	dctx := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(dctx, timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("task", name).Str("panic", fmt.Sprint(r)).Msg("detached task panicked")
			}
		}()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("task", name).Msg("detached task failed")
		}
	}()
}
