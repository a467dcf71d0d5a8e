// Package director implements the rule applicator and scenario-reloader:
// an apply loop consuming DirectorRequest envelopes from the durable
// "director" queue, and a jittered-debounce reload loop subscribed to the
// fanout "reload" exchange.
package director

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/broker"
	"github.com/contextal/workgraph/internal/metrics"
	"github.com/contextal/workgraph/internal/rulesengine"
)

// directorRequest mirrors the DirectorRequest wire shape.
type directorRequest struct {
	WorkID string `json:"work_id"`
}

// Director is the single per-process consumer: apply and reload are
// mutually exclusive in time, enforced by running both off one select
// loop rather than two goroutines.
type Director struct {
	applyCh         *amqp.Channel
	reloadCh        *amqp.Channel
	reloadQueueName string

	applier rulesengine.ScenarioApplier
	metrics *metrics.Director
	log     *zap.Logger
	failure *FailureNotifier

	reloader *reloader
}

// New returns a Director ready to Run. applyCh must have the director
// queue declared and QoS(prefetch=1) applied; reloadCh must have the
// fanout reload exchange bound to reloadQueueName (see
// broker.DeclareReloadTopology).
func New(
	applyCh, reloadCh *amqp.Channel,
	reloadQueueName string,
	applier rulesengine.ScenarioApplier,
	clock clockwork.Clock,
	randomSeed int64,
	m *metrics.Director,
	log *zap.Logger,
	failure *FailureNotifier,
) *Director {
	return &Director{
		applyCh:         applyCh,
		reloadCh:        reloadCh,
		reloadQueueName: reloadQueueName,
		applier:         applier,
		metrics:         m,
		log:             log,
		failure:         failure,
		reloader:        newReloader(clock, randomSeed, log, m.ReloadsTotal),
	}
}

// Run consumes both the apply queue and the reload queue, and drives the
// debounce timer, until ctx is canceled or a fatal error occurs.
func (dir *Director) Run(ctx context.Context) error {
	applyDeliveries, err := dir.applyCh.ConsumeWithContext(ctx, broker.QueueDirector, "", false, false, false, false, nil)
	if err != nil {
		return transientErr("consume director queue", err)
	}
	reloadDeliveries, err := dir.reloadCh.ConsumeWithContext(ctx, dir.reloadQueueName, "", true, true, false, false, nil)
	if err != nil {
		return transientErr("consume reload queue", err)
	}

	timer := dir.reloader.clock.NewTimer(dir.reloader.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-dir.failure.Done():
			return transientErr("run", errors.New("failure notifier fired"))

		case d, ok := <-applyDeliveries:
			if !ok {
				dir.failure.Fire()
				return transientErr("run", errors.New("director channel closed"))
			}
			if err := dir.handleApply(ctx, d); err != nil {
				var derr *Error
				if errors.As(err, &derr) && derr.Transient {
					dir.failure.Fire()
					return err
				}
			}

		case d, ok := <-reloadDeliveries:
			if !ok {
				dir.failure.Fire()
				return transientErr("run", errors.New("reload channel closed"))
			}
			_ = d // auto-ack: the delivery is already acknowledged by the broker
			dir.reloader.markPending()

		case <-timer.Chan():
			next := dir.reloader.fire(ctx, dir.applier.ReloadScenarios)
			timer.Reset(next)
		}
	}
}

// handleApply validates and processes one DirectorRequest delivery.
func (dir *Director) handleApply(ctx context.Context, d amqp.Delivery) error {
	env, parseErr := broker.ParseEnvelope[directorRequest](d, broker.MessageTypeProcess)
	if parseErr != nil {
		dir.log.Warn("rejecting malformed director request", zap.Error(parseErr))
		if err := broker.Reject(d, false); err != nil {
			return transientErr("reject (no requeue)", err)
		}
		return nil
	}

	log := dir.log.With(zap.String("work_id", env.WorkID))

	if err := dir.applier.Apply(ctx, env.WorkID); err != nil {
		log.Error("graphdb error, exiting", zap.Error(err))
		dir.metrics.AppliesTotal.WithLabelValues(metrics.ApplyOutcomeRejected).Inc()
		if rejErr := broker.Reject(d, true); rejErr != nil {
			return transientErr("reject (requeue)", rejErr)
		}
		return transientErr("apply", err)
	}

	if err := broker.Ack(d); err != nil {
		return transientErr("ack", err)
	}
	dir.metrics.AppliesTotal.WithLabelValues(metrics.ApplyOutcomeOK).Inc()
	log.Info("scenarios applied")
	return nil
}
