// workers/dispatcher.go
package workers

import (
	"context"
	"sync"
	"time"

	"xp-ledger/logger"
	"xp-ledger/services"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SideEffectFailuresTotal counts side effects that exhausted their retries.
var SideEffectFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "xp_side_effect_failures_total",
		Help: "Background side effects that failed after all retries",
	},
	[]string{"name"},
)

// Dispatcher runs post-request side effects (achievement evaluation, streak refresh)
// in the background. Failures are retried with exponential backoff and then logged;
// they never reach the request that scheduled them. Validation errors are not retried.
type Dispatcher struct {
	MaxElapsed time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

func NewDispatcher(maxElapsed time.Duration, log *logger.Logger) *Dispatcher {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		MaxElapsed: maxElapsed,
		ctx:        ctx,
		cancel:     cancel,
		log:        log.With("service", "Dispatcher"),
	}
}

// Go schedules fn. The context passed to fn is detached from any request and is
// cancelled only by Stop.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		policy.MaxElapsedTime = d.MaxElapsed

		attempt := 0
		err := backoff.RetryNotify(func() error {
			attempt++
			err := fn(d.ctx)
			if services.IsValidation(err) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(policy, d.ctx), func(err error, wait time.Duration) {
			d.log.Warn("side effect failed, retrying", "name", name, "attempt", attempt, "wait", wait, "error", err)
		})
		if err != nil {
			SideEffectFailuresTotal.WithLabelValues(name).Inc()
			d.log.Error("side effect gave up", "name", name, "attempts", attempt, "error", err)
		}
	}()
}

// Wait blocks until every scheduled side effect has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels in-flight retries and waits for the goroutines to return.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}
