package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// amqpReconnectWait/amqpReconnectAttempts mirror the teacher's
// rmq_rpc.Connection.AttemptConnect retry loop (_defaultWaitTime /
// _defaultAttempts in pkg/rabbitmq/rmq_rpc/client).
const (
	amqpReconnectWait     = 2 * time.Second
	amqpReconnectAttempts = 10
)

// AmqpChannel is the alternate transport for the control-plane channel
// (spec §6): requests arrive on requestQueue, responses and
// notifications are published to responseQueue. It satisfies the same
// read/write shape as StdioChannel so a Worker can use either
// interchangeably.
type AmqpChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	requestQueue  string
	responseQueue string
	deliveries    <-chan amqp.Delivery
}

// DialAmqp connects to url, declaring requestQueue/responseQueue and
// starting consumption of requestQueue, retrying per
// amqpReconnectAttempts/amqpReconnectWait.
func DialAmqp(url, requestQueue, responseQueue string) (*AmqpChannel, error) {
	var conn *amqp.Connection
	var err error
	for attempt := amqpReconnectAttempts; attempt > 0; attempt-- {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(amqpReconnectWait)
	}
	if err != nil {
		return nil, fmt.Errorf("control: amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("control: amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(requestQueue, false, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("control: declare request queue: %w", err)
	}
	if _, err := ch.QueueDeclare(responseQueue, false, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("control: declare response queue: %w", err)
	}

	deliveries, err := ch.Consume(requestQueue, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("control: consume: %w", err)
	}

	return &AmqpChannel{
		conn:          conn,
		ch:            ch,
		requestQueue:  requestQueue,
		responseQueue: responseQueue,
		deliveries:    deliveries,
	}, nil
}

// ReadRequest blocks for the next inbound Request. A closed delivery
// channel (broker connection lost) is a channel-level failure per spec
// §6's "abrupt remote closure... causes the worker to terminate".
func (a *AmqpChannel) ReadRequest() (Request, error) {
	d, ok := <-a.deliveries
	if !ok {
		return Request{}, fmt.Errorf("control: amqp delivery channel closed")
	}
	var req Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		return req, fmt.Errorf("control: malformed request body: %w", err)
	}
	return req, nil
}

// WriteResponse publishes resp to responseQueue.
func (a *AmqpChannel) WriteResponse(resp Response) error {
	return a.publish(resp)
}

// WriteNotification publishes n to responseQueue.
func (a *AmqpChannel) WriteNotification(n Notification) error {
	return a.publish(n)
}

func (a *AmqpChannel) publish(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.ch.Publish("", a.responseQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel and connection.
func (a *AmqpChannel) Close() error {
	if err := a.ch.Close(); err != nil {
		return err
	}
	return a.conn.Close()
}
