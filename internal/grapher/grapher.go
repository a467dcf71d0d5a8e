// Package grapher implements the result collector: it consumes JobResult
// envelopes from the results queue, runs the encryption-retry check,
// persists the rest transactionally via internal/graph, and signals the
// Director.
package grapher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/broker"
	"github.com/contextal/workgraph/internal/graph"
	"github.com/contextal/workgraph/internal/jobresult"
	"github.com/contextal/workgraph/internal/metrics"
	"github.com/contextal/workgraph/internal/object"
	"github.com/contextal/workgraph/pkg/objectstore"
)

// Config carries the system maxima the Grapher enforces: the accepted
// tree depth, and the recursion/TTL clamps applied to encryption-retry
// republishes.
type Config struct {
	MaxWorkDepth int
	MaxRecursion uint32
	MaxTTLSec    int64
}

// Grapher is the results-queue consumer loop. One instance consumes from
// the durable "results" queue; Run blocks until ctx is canceled, the
// failure notifier fires, or a transient error forces process termination
// (in which case Run returns a non-nil error and the caller — cmd/grapher
// — exits non-zero for the supervisor to restart).
type Grapher struct {
	ch      *amqp.Channel
	db      *graph.DB
	store   *objectstore.Store
	metrics *metrics.Grapher
	log     *zap.Logger
	failure *FailureNotifier
	cfg     Config
}

// New returns a Grapher ready to Run. ch must already have QoS(prefetch=1)
// applied (see broker.Conn.Channel) and the results queue declared. store
// is consulted read-only, to warn about nodes whose blob never landed in
// the shared store; the Grapher never writes objects itself.
func New(ch *amqp.Channel, db *graph.DB, store *objectstore.Store, m *metrics.Grapher, log *zap.Logger, failure *FailureNotifier, cfg Config) *Grapher {
	return &Grapher{ch: ch, db: db, store: store, metrics: m, log: log, failure: failure, cfg: cfg}
}

// Run consumes deliveries until ctx is done or a fatal error occurs.
func (g *Grapher) Run(ctx context.Context) error {
	deliveries, err := g.ch.ConsumeWithContext(ctx, broker.QueueResults, "", false, false, false, false, nil)
	if err != nil {
		return transientErr("consume results", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.failure.Done():
			return transientErr("run", errors.New("failure notifier fired"))
		case d, ok := <-deliveries:
			if !ok {
				g.failure.Fire()
				return transientErr("run", errors.New("results channel closed"))
			}
			if err := g.handle(ctx, d); err != nil {
				var gerr *Error
				if errors.As(err, &gerr) && gerr.Transient {
					g.failure.Fire()
					return err
				}
				// Permanent errors are already logged and rejected inside
				// handle; the loop keeps consuming.
			}
		}
	}
}

// handle processes exactly one delivery. A returned *Error with
// Transient=true tells Run to terminate the process; any other outcome
// (nil, or a permanent *Error already acted upon) lets the loop continue.
func (g *Grapher) handle(ctx context.Context, d amqp.Delivery) error {
	env, parseErr := broker.ParseEnvelope[jobresult.JobResult](d, broker.MessageTypeResult)
	if parseErr != nil {
		g.log.Warn("rejecting malformed result envelope", zap.Error(parseErr))
		return g.rejectPermanent(d)
	}
	work := env.Body
	log := g.log.With(zap.String("work_id", env.WorkID))

	if depth := work.Depth(); depth > g.cfg.MaxWorkDepth {
		log.Warn("rejecting result exceeding max work depth", zap.Int("depth", depth), zap.Int("max", g.cfg.MaxWorkDepth))
		g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return g.rejectPermanent(d)
	}

	if badNode, ok := firstHashMismatch(work); ok {
		log.Warn("rejecting result with object_id/hash mismatch",
			zap.String("object_id", badNode.Info.ObjectID), zap.String("sha256", badNode.Info.Hashes["sha256"]))
		g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return g.rejectPermanent(d)
	}

	if retry, passwords := shouldReprocess(work); retry {
		return g.reprocess(ctx, d, env.WorkID, work, passwords, log)
	}

	return g.persist(ctx, d, env.WorkID, work, log)
}

func (g *Grapher) reprocess(ctx context.Context, d amqp.Delivery, workID string, work jobresult.JobResult, passwords []string, log *zap.Logger) error {
	descriptor := buildRetryDescriptor(work, passwords, reprocessLimits{
		MaxRecursion: g.cfg.MaxRecursion,
		MaxTTLSec:    g.cfg.MaxTTLSec,
	})

	body, err := json.Marshal(descriptor)
	if err != nil {
		log.Error("failed to encode retry descriptor", zap.Error(err))
		return g.rejectPermanent(d)
	}

	queue := descriptor.Info.RequestQueue()
	if err := broker.DeclareRequestTopology(g.ch, queue); err != nil {
		log.Warn("failed to declare request queue, rejecting with requeue", zap.Error(err))
		return g.rejectTransient(d)
	}
	if err := broker.Publish(ctx, g.ch, "", queue, broker.MessageTypeRequest, workID, body); err != nil {
		log.Warn("failed to publish reprocess request, rejecting with requeue", zap.Error(err))
		return g.rejectTransient(d)
	}

	if err := broker.Ack(d); err != nil {
		return transientErr("ack after reprocess", err)
	}

	g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeReprocess).Inc()
	g.metrics.ReprocessTotal.Inc()
	log.Info("published encryption-retry request", zap.String("queue", queue), zap.Int("passwords", len(passwords)))
	return nil
}

func (g *Grapher) persist(ctx context.Context, d amqp.Delivery, workID string, work jobresult.JobResult, log *zap.Logger) error {
	g.checkObjectPresence(work, log)

	start := time.Now()
	err := g.db.SaveResult(ctx, workID, work)
	g.metrics.GraphingLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var gerr *graph.Error
		if errors.As(err, &gerr) && gerr.Transient {
			log.Error("transient graph persistence error, rejecting with requeue", zap.Error(err))
			g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			if rejErr := g.rejectTransient(d); rejErr != nil {
				return rejErr
			}
			return transientErr("persist", err)
		}
		log.Error("permanent graph persistence error, rejecting", zap.Error(err))
		g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return g.rejectPermanent(d)
	}

	if err := broker.Ack(d); err != nil {
		return transientErr("ack after persist", err)
	}

	g.metrics.WorksTotal.WithLabelValues(metrics.OutcomeCommitted).Inc()
	g.metrics.WorkTotalTime.Observe(time.Since(work.Info.WorkCreationTime()).Seconds())

	if err := g.notifyDirector(ctx, workID); err != nil {
		g.metrics.ApplyNotifyFailures.Inc()
		log.Warn("failed to publish apply-rules notification (non-fatal)", zap.Error(err))
	}

	log.Info("work committed",
		zap.String("size", humanize.Bytes(work.Info.Size)),
		zap.String("age", humanize.Time(work.Info.WorkCreationTime())),
	)
	return nil
}

// directorRequest mirrors the DirectorRequest wire shape.
type directorRequest struct {
	WorkID string `json:"work_id"`
}

func (g *Grapher) notifyDirector(ctx context.Context, workID string) error {
	body, err := json.Marshal(directorRequest{WorkID: workID})
	if err != nil {
		return err
	}
	return broker.Publish(ctx, g.ch, "", broker.QueueDirector, broker.MessageTypeProcess, workID, body)
}

func (g *Grapher) rejectPermanent(d amqp.Delivery) error {
	if err := broker.Reject(d, false); err != nil {
		return transientErr("reject (no requeue)", err)
	}
	return nil
}

// firstHashMismatch returns the first node whose declared object_id
// disagrees with its own sha256 digest, per the Object Store's contract
// that object_id is always the content's sha256 hex digest.
func firstHashMismatch(work jobresult.JobResult) (jobresult.JobResult, bool) {
	var bad jobresult.JobResult
	found := false
	work.Walk(func(n jobresult.JobResult) bool {
		if n.Info.ObjectID != n.Info.Hashes[object.ObjectIDHashType] {
			bad = n
			found = true
			return false
		}
		return true
	})
	return bad, found
}

// checkObjectPresence logs (non-fatally) any non-empty node whose blob is
// missing from the shared object store. A missing blob does not block the
// graph commit; the row still needs to exist for an operator investigating
// later, since the store has no garbage collection or reference counting.
func (g *Grapher) checkObjectPresence(work jobresult.JobResult, log *zap.Logger) {
	if g.store == nil {
		return
	}
	work.Walk(func(n jobresult.JobResult) bool {
		if n.Info.IsSkipped() || n.Info.IsEmpty() {
			return true
		}
		if _, err := os.Stat(g.store.Path(n.Info.ObjectID)); err != nil {
			log.Warn("object missing from object store", zap.String("object_id", n.Info.ObjectID), zap.Error(err))
		}
		return true
	})
}

func (g *Grapher) rejectTransient(d amqp.Delivery) error {
	if err := broker.Reject(d, true); err != nil {
		return transientErr("reject (requeue)", err)
	}
	return nil
}
