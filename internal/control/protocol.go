// Package control implements the host process's request/notification
// channel (spec §6): a framed JSON protocol carried over either stdio or
// amqp, dispatched onto a Router/Producer/Consumer tree.
package control

import "encoding/json"

// Request is one inbound call: `{id, method, internal, data}`.
type Request struct {
	ID       string          `json:"id"`
	Method   string          `json:"method"`
	Internal Target          `json:"internal"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Target locates the entity a Request addresses.
type Target struct {
	RouterID   string `json:"routerId,omitempty"`
	ProducerID string `json:"producerId,omitempty"`
	ConsumerID string `json:"consumerId,omitempty"`
}

// Response answers a Request: either `{id, accepted: true, data?}` or
// `{id, rejected: true, reason}`.
type Response struct {
	ID       string          `json:"id"`
	Accepted bool            `json:"accepted,omitempty"`
	Rejected bool            `json:"rejected,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Accept builds an accepted Response, marshaling data when present.
func Accept(id string, data interface{}) Response {
	r := Response{ID: id, Accepted: true}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			r.Data = b
		}
	}
	return r
}

// Reject builds a rejected Response carrying reason.
func Reject(id, reason string) Response {
	return Response{ID: id, Rejected: true, Reason: reason}
}

// Notification is an unsolicited event pushed toward the host:
// `{targetId, event, data?}`.
type Notification struct {
	TargetID string          `json:"targetId"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// NewNotification builds a Notification, marshaling data when present.
func NewNotification(targetID, event string, data interface{}) Notification {
	n := Notification{TargetID: targetID, Event: event}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			n.Data = b
		}
	}
	return n
}

// Recognised method names (spec §6).
const (
	MethodRouterClose             = "router.close"
	MethodRouterDump              = "router.dump"
	MethodRouterCreateProducer    = "router.createProducer"
	MethodRouterCreateConsumer    = "router.createConsumer"
	MethodProducerClose           = "producer.close"
	MethodProducerPause           = "producer.pause"
	MethodProducerResume          = "producer.resume"
	MethodProducerDump            = "producer.dump"
	MethodConsumerClose           = "consumer.close"
	MethodConsumerPause           = "consumer.pause"
	MethodConsumerResume          = "consumer.resume"
	MethodConsumerSetPreferred    = "consumer.setPreferredProfile"
	MethodConsumerRequestFullFrame = "consumer.requestFullFrame"
	MethodConsumerDump            = "consumer.dump"
)

// Event names this worker emits (spec §6).
const (
	EventClose                  = "close"
	EventSourcePaused           = "sourcepaused"
	EventSourceResumed          = "sourceresumed"
	EventEffectiveProfileChange = "effectiveprofilechange"
	EventParametersChange       = "parameterschange"
)
