// Package timing measures named code blocks.
package timing

import (
	"context"
	"time"

	"github.com/woozymasta/fgdbbench/internal/observability"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
)

// Timer reports wall clock durations of stages to the log, metrics and traces.
type Timer struct {
	Metrics *observability.Collector
	// now is replaceable in tests.
	now func() time.Time
}

// New returns a timer recording into metrics, which may be nil.
func New(metrics *observability.Collector) *Timer {
	return &Timer{Metrics: metrics, now: time.Now}
}

// Track runs fn as the named stage. Stages nest through ctx.
func (t *Timer) Track(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, name)
	defer span.End()

	now := t.now
	if now == nil {
		now = time.Now
	}

	start := now()
	err := fn(ctx)
	elapsed := now().Sub(start)

	t.Metrics.ObserveStage(name, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().
			Err(err).
			Str("stage", name).
			Dur("duration", elapsed).
			Msg("Stage failed")
		return err
	}

	log.Info().
		Str("stage", name).
		Float64("seconds", elapsed.Seconds()).
		Msgf("Code block '%s' took: %.5f s", name, elapsed.Seconds())

	return nil
}
