package director

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// reloadMinMS and reloadMaxMS bound the debounce interval: every re-arm
// draws a fresh interval from [3000, 6000) ms.
const (
	reloadMinMS = 3000
	reloadMaxMS = 6000
)

// reloader implements debounced-with-jitter scenario reloading: a
// self-re-arming timer (not time.Ticker, which cannot change its period
// between fires) redraws its interval from [3000ms, 6000ms) on every
// fire. If a reload message arrived since the last fire, ReloadScenarios
// runs and the flag clears; otherwise the fire is a no-op. There is no
// catch-up queue to drain, so a burst of reload messages collapses to
// exactly one reload per window.
type reloader struct {
	clock  clockwork.Clock
	rng    *rand.Rand
	log    *zap.Logger
	metric prometheusCounter

	pending bool
}

// prometheusCounter is the narrow increment-only interface reload.go needs
// from *metrics.Director.ReloadsTotal, kept as an interface purely so unit
// tests don't need to stand up a real registry.
type prometheusCounter interface {
	Inc()
}

func newReloader(clock clockwork.Clock, seed int64, log *zap.Logger, counter prometheusCounter) *reloader {
	return &reloader{
		clock:  clock,
		rng:    rand.New(rand.NewSource(seed)),
		log:    log,
		metric: counter,
	}
}

func (r *reloader) nextInterval() time.Duration {
	ms := reloadMinMS + r.rng.Int63n(reloadMaxMS-reloadMinMS)
	return time.Duration(ms) * time.Millisecond
}

// markPending is called on every reload-exchange delivery.
func (r *reloader) markPending() {
	r.pending = true
}

// fire runs on every timer tick. If a reload was pending, it invokes
// reload and clears the flag; otherwise it's a no-op. It always returns
// the next interval to re-arm the timer with.
func (r *reloader) fire(ctx context.Context, reload func(context.Context) error) time.Duration {
	if r.pending {
		r.pending = false
		if err := reload(ctx); err != nil {
			r.log.Warn("scenario reload failed", zap.Error(err))
		} else {
			r.metric.Inc()
			r.log.Info("scenarios reloaded after debounce")
		}
	}
	return r.nextInterval()
}
