package broker

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Envelope is the one place a delivery's required headers are validated and
// its body decoded. Every consumer in this repository goes through
// ParseEnvelope instead of touching amqp.Delivery fields directly — this is
// the formalization the design notes call for in place of "declared safe"
// unwraps on the raw delivery.
type Envelope[T any] struct {
	WorkID string
	Body   T
}

// WorkIDLength is the exact length of every work_id: the hyphenated
// textual form of a UUID, as minted by the submission frontend. A
// correlation_id of any other length is malformed.
const WorkIDLength = 36

// ParseEnvelope validates the three required headers (message_type,
// content_type, correlation_id) against expectedMessageType and decodes the
// JSON body into T. Any validation failure returns a *Error with
// Kind = KindMalformed, which the caller rejects without requeue.
func ParseEnvelope[T any](d amqp.Delivery, expectedMessageType string) (Envelope[T], *Error) {
	mt, _ := d.Headers[headerMessageType].(string)
	if mt != expectedMessageType {
		return Envelope[T]{}, newErr("validate envelope", KindMalformed,
			fmt.Errorf("invalid message_type: got %q, want %q", mt, expectedMessageType))
	}
	if d.ContentType != ContentTypeJSON {
		return Envelope[T]{}, newErr("validate envelope", KindMalformed,
			fmt.Errorf("invalid content_type: got %q, want %q", d.ContentType, ContentTypeJSON))
	}
	if len(d.CorrelationId) != WorkIDLength {
		return Envelope[T]{}, newErr("validate envelope", KindMalformed,
			fmt.Errorf("invalid correlation_id length: got %d, want %d", len(d.CorrelationId), WorkIDLength))
	}

	var body T
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return Envelope[T]{}, newErr("decode envelope body", KindMalformed, err)
	}

	return Envelope[T]{WorkID: d.CorrelationId, Body: body}, nil
}

// Ack acknowledges a delivery, wrapping the broker-level error.
func Ack(d amqp.Delivery) error {
	if err := d.Ack(false); err != nil {
		return newErr("ack", KindTransient, err)
	}
	return nil
}

// Reject rejects a delivery with the given requeue flag, wrapping the
// broker-level error.
func Reject(d amqp.Delivery, requeue bool) error {
	if err := d.Reject(requeue); err != nil {
		return newErr("reject", KindTransient, err)
	}
	return nil
}
