package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Drainer runs one drain cycle over the offline queue. A non-nil error
// means the cycle should be retried later.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Pinger checks that the media server is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusReporter receives the outcome of connectivity probes. Satisfied by
// *health.Monitor.
type StatusReporter interface {
	ReportOnline()
	ReportOffline(err error)
}

// DrainRunner invokes the reconciler's drain with a bounded per-trigger
// retry count and a connectivity precondition: a drain attempt is skipped
// while the server is unreachable. A batch that is still stuck after the
// retry budget stays queued for the next trigger; it is never dropped here.
type DrainRunner struct {
	drainer     Drainer
	pinger      Pinger
	status      StatusReporter
	logger      zerolog.Logger
	maxAttempts int
	retryDelay  time.Duration

	mu      sync.Mutex
	running bool
	rerun   bool
	stop    chan struct{}
	done    sync.WaitGroup
}

// NewDrainRunner creates a runner with the given per-trigger attempt budget.
func NewDrainRunner(drainer Drainer, pinger Pinger, maxAttempts int, logger zerolog.Logger) *DrainRunner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DrainRunner{
		drainer:     drainer,
		pinger:      pinger,
		logger:      logger.With().Str("component", "drain-runner").Logger(),
		maxAttempts: maxAttempts,
		retryDelay:  30 * time.Second,
		stop:        make(chan struct{}),
	}
}

// SetStatusReporter attaches the server reachability monitor.
func (r *DrainRunner) SetStatusReporter(s StatusReporter) { r.status = s }

// TriggerDrain schedules a drain run at the next opportunity. Triggers that
// arrive while a run is in flight collapse into a single follow-up run.
func (r *DrainRunner) TriggerDrain() {
	r.mu.Lock()
	if r.running {
		r.rerun = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.done.Add(1)
	go func() {
		defer r.done.Done()
		r.run()
	}()
}

// Stop cancels pending retries and waits for the in-flight run to finish.
func (r *DrainRunner) Stop() {
	close(r.stop)
	r.done.Wait()
}

func (r *DrainRunner) run() {
	for {
		r.runAttempts()

		r.mu.Lock()
		if !r.rerun {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.rerun = false
		r.mu.Unlock()
	}
}

// runAttempts performs up to maxAttempts drain cycles for one trigger.
func (r *DrainRunner) runAttempts() {
	ctx := context.Background()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if r.pinger != nil {
			if err := r.pinger.Ping(ctx); err != nil {
				if r.status != nil {
					r.status.ReportOffline(err)
				}
				r.logger.Info().Err(err).Int("attempt", attempt).Msg("server unreachable, skipping drain attempt")
				if !r.wait() {
					return
				}
				continue
			}
			if r.status != nil {
				r.status.ReportOnline()
			}
		}

		err := r.drainer.Drain(ctx)
		if err == nil {
			return
		}

		r.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", r.maxAttempts).
			Msg("drain incomplete")

		if attempt < r.maxAttempts && !r.wait() {
			return
		}
	}

	r.logger.Warn().Int("attempts", r.maxAttempts).Msg("drain retry budget exhausted, queue kept for next trigger")
}

// wait sleeps between attempts; returns false when the runner is stopping.
func (r *DrainRunner) wait() bool {
	timer := time.NewTimer(r.retryDelay)
	defer timer.Stop()
	select {
	case <-r.stop:
		return false
	case <-timer.C:
		return true
	}
}
