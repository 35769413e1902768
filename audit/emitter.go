package audit

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Outcome is the result of one two-stage delivery.
type Outcome int

// Delivery outcomes.
const (
	OutcomePrimarySucceeded Outcome = iota
	OutcomeFallbackSucceeded
	OutcomeBothFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrimarySucceeded:
		return "primary_succeeded"
	case OutcomeFallbackSucceeded:
		return "fallback_succeeded"
	case OutcomeBothFailed:
		return "both_failed"
	default:
		return "unknown"
	}
}

const defaultStageTimeout = 2 * time.Second

// EmitterConfig configures an [Emitter].
type EmitterConfig struct {
	// StageTimeout bounds each sink attempt. Zero means 2s.
	StageTimeout time.Duration
	// FailureLogInterval throttles the local log line written when both
	// sinks fail. Zero means one line per minute.
	FailureLogInterval time.Duration
	Clock              clock.Clock
}

// OutcomeCounts is a snapshot of delivery outcomes.
type OutcomeCounts struct {
	Primary  uint64
	Fallback uint64
	Failed   uint64
}

// Emitter delivers an event to its primary sink and, if that fails, to its
// fallback. It never returns an error; the [Outcome] says what happened.
type Emitter struct {
	primary  Sink
	fallback Sink
	timeout  time.Duration
	clock    clock.Clock
	failLog  *rate.Sometimes

	primaryOK  atomic.Uint64
	fallbackOK atomic.Uint64
	failed     atomic.Uint64
}

// NewEmitter builds an emitter. A nil primary or fallback is a [NoOpSink].
func NewEmitter(primary, fallback Sink, cfg EmitterConfig) *Emitter {
	if primary == nil {
		primary = NoOpSink{}
	}
	if fallback == nil {
		fallback = NoOpSink{}
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.FailureLogInterval <= 0 {
		cfg.FailureLogInterval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Emitter{
		primary:  primary,
		fallback: fallback,
		timeout:  cfg.StageTimeout,
		clock:    cfg.Clock,
		failLog:  &rate.Sometimes{First: 1, Interval: cfg.FailureLogInterval},
	}
}

// Deliver seals e and attempts primary then fallback, each bounded by the
// stage timeout and by ctx.
func (em *Emitter) Deliver(ctx context.Context, e Event) Outcome {
	e = Seal(e, em.clock.Now())

	if em.attempt(ctx, em.primary, e) == nil {
		em.primaryOK.Add(1)
		return OutcomePrimarySucceeded
	}
	if em.attempt(ctx, em.fallback, e) == nil {
		em.fallbackOK.Add(1)
		return OutcomeFallbackSucceeded
	}

	em.failed.Add(1)
	em.failLog.Do(func() {
		log.Print("widgetAuth: audit event lost, primary and fallback sinks failed")
	})
	return OutcomeBothFailed
}

// Write implements [Sink] so an Emitter can sit behind a [Dispatcher].
func (em *Emitter) Write(ctx context.Context, e Event) error {
	em.Deliver(ctx, e)
	return nil
}

// Counts returns delivery outcome totals.
func (em *Emitter) Counts() OutcomeCounts {
	return OutcomeCounts{
		Primary:  em.primaryOK.Load(),
		Fallback: em.fallbackOK.Load(),
		Failed:   em.failed.Load(),
	}
}

func (em *Emitter) attempt(ctx context.Context, sink Sink, e Event) (err error) {
	stageCtx, cancel := context.WithTimeout(ctx, em.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errSinkPanic
		}
	}()

	if err := sink.Write(stageCtx, e); err != nil {
		return err
	}
	return stageCtx.Err()
}
