// Package broker wires the AMQP topology this pipeline runs on: a durable
// quorum "director" queue, a durable quorum "results" queue, durable
// quorum per-type "request" queues, and a fanout "reload" exchange with
// one exclusive auto-delete queue per consumer. Reconnect handling follows
// the NotifyClose pattern common to amqp091-go consumers, the maintained
// continuation of the legacy streadway/amqp API.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Reserved AMQP header values.
const (
	MessageTypeProcess = "sc_process"
	MessageTypeReload  = "sc_reload"
	MessageTypeResult  = "result"
	MessageTypeRequest = "request"

	ContentTypeJSON = "application/json"

	headerMessageType = "message_type"
)

// Queue and exchange names.
const (
	QueueDirector  = "director"
	QueueResults   = "results"
	ExchangeReload = "reload"
)

// quorumArgs marks a queue as a quorum queue, the durability/replication
// model used for the director/results/request queues.
func quorumArgs() amqp.Table {
	return amqp.Table{"x-queue-type": "quorum"}
}

// Conn wraps one AMQP connection and fires the caller's one-shot failure
// notifier on unexpected connection loss.
type Conn struct {
	conn *amqp.Connection
	log  *zap.Logger
}

// Dial connects to the broker at url and arranges for notifyOnce to run if
// the connection drops unexpectedly. notifyOnce must be the Fire method of
// the caller-owned failure notifier (see internal/grapher,
// internal/director); it is safe to call more than once.
func Dial(url string, log *zap.Logger, notifyOnce func()) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, newErr("dial", KindTransient, err)
	}

	closeCh := make(chan *amqp.Error, 1)
	conn.NotifyClose(closeCh)
	go func() {
		amqpErr, ok := <-closeCh
		if !ok {
			return
		}
		log.Error("broker connection closed unexpectedly", zap.Error(amqpErr))
		notifyOnce()
	}()

	return &Conn{conn: conn, log: log}, nil
}

// Close closes the underlying AMQP connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Channel opens a new AMQP channel with prefetch=1, a conservative default
// that favors even work distribution over consumer-side batching.
func (c *Conn) Channel() (*amqp.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, newErr("open channel", KindTransient, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, newErr("set qos", KindTransient, err)
	}
	return ch, nil
}

// DeclareDirectorTopology declares the durable quorum "director" queue.
func DeclareDirectorTopology(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(QueueDirector, true, false, false, false, quorumArgs())
	if err != nil {
		return newErr("declare director queue", KindTransient, err)
	}
	return nil
}

// DeclareResultsTopology declares the durable quorum "results" queue.
func DeclareResultsTopology(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(QueueResults, true, false, false, false, quorumArgs())
	if err != nil {
		return newErr("declare results queue", KindTransient, err)
	}
	return nil
}

// DeclareRequestTopology declares a durable quorum per-type request queue.
func DeclareRequestTopology(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(queueName, true, false, false, false, quorumArgs())
	if err != nil {
		return newErr(fmt.Sprintf("declare request queue %q", queueName), KindTransient, err)
	}
	return nil
}

// DeclareReloadTopology declares the durable fanout "reload" exchange and
// binds a fresh exclusive, auto-delete queue to it, returning the queue
// name the caller should consume from. Every Director instance gets its
// own such queue, so every instance receives every reload broadcast.
func DeclareReloadTopology(ch *amqp.Channel, consumerID string) (string, error) {
	if err := ch.ExchangeDeclare(ExchangeReload, "fanout", true, false, false, false, nil); err != nil {
		return "", newErr("declare reload exchange", KindTransient, err)
	}
	q, err := ch.QueueDeclare("reload."+consumerID, false, true, true, false, nil)
	if err != nil {
		return "", newErr("declare reload queue", KindTransient, err)
	}
	if err := ch.QueueBind(q.Name, "", ExchangeReload, false, nil); err != nil {
		return "", newErr("bind reload queue", KindTransient, err)
	}
	return q.Name, nil
}

// Publish publishes body on exchange/routingKey with the three required
// headers set: message_type (via AMQP header), content_type (native AMQP
// property), and correlation_id (native AMQP property, set to workID).
func Publish(ctx context.Context, ch *amqp.Channel, exchange, routingKey, messageType, workID string, body []byte) error {
	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		Headers:       amqp.Table{headerMessageType: messageType},
		ContentType:   ContentTypeJSON,
		CorrelationId: workID,
		Body:          body,
		DeliveryMode:  amqp.Persistent,
	})
	if err != nil {
		return newErr(fmt.Sprintf("publish to %q", routingKey), KindTransient, err)
	}
	return nil
}
