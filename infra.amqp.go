package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Queuer = (*amqpQueue)(nil)

// amqpQueue publishes change events on a durable direct exchange where
// the queue id is the routing key. A single durable queue is bound to
// every queue id so Pop sees all of them in publishing order.
// A dropped connection or channel is reopened on the next call.
type amqpQueue struct {
	url      string
	exchange string
	queue    string
	qids     []string

	mu         sync.Mutex
	closed     bool
	conn       *amqp.Connection
	pub        *amqp.Channel
	sub        *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewAMQPQueue connects to the broker then declares the exchange,
// the queue and its bindings.
func NewAMQPQueue(config *AMQPConfig, qids ...string) (*amqpQueue, error) {
	q := &amqpQueue{
		url:      config.URL,
		exchange: config.Exchange,
		queue:    config.Queue,
		qids:     qids,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

// connect dials the broker and declares the topology. Callers hold q.mu.
func (q *amqpQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(q.exchange, amqp.ExchangeDirect, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", q.exchange, err)
	}
	if _, err = ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", q.queue, err)
	}
	for _, qid := range q.qids {
		if err = ch.QueueBind(q.queue, qid, q.exchange, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("failed to bind %s to %s: %w", qid, q.queue, err)
		}
	}

	q.conn, q.pub = conn, ch
	q.sub, q.deliveries = nil, nil
	return nil
}

// ensureConn redials when the connection is gone. Callers hold q.mu.
func (q *amqpQueue) ensureConn() error {
	if q.closed {
		return ErrQueueClosed
	}
	if q.conn != nil && !q.conn.IsClosed() {
		return nil
	}
	return q.connect()
}

func (q *amqpQueue) publisher() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConn(); err != nil {
		return nil, err
	}
	if q.pub.IsClosed() {
		ch, err := q.conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open amqp channel: %w", err)
		}
		q.pub = ch
	}
	return q.pub, nil
}

// Push publishes a persistent message routed by the queue id.
func (q *amqpQueue) Push(ctx context.Context, qid string, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	pub, err := q.publisher()
	if err != nil {
		return err
	}
	return pub.PublishWithContext(ctx, q.exchange, qid, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         bookBytes,
	})
}

func (q *amqpQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConn(); err != nil {
		return nil, err
	}
	if q.deliveries != nil && q.sub != nil && !q.sub.IsClosed() {
		return q.deliveries, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume from %s: %w", q.queue, err)
	}
	q.sub, q.deliveries = ch, deliveries
	return deliveries, nil
}

// dropSubscriber forgets a consuming channel whose deliveries stopped,
// so the next Pop opens a new one.
func (q *amqpQueue) dropSubscriber(deliveries <-chan amqp.Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != deliveries {
		return
	}
	if q.sub != nil {
		q.sub.Close()
	}
	q.sub, q.deliveries = nil, nil
}

// Pop waits for the next delivery. Bindings are fixed at construction
// so qids is not used for filtering here. ErrQueueClosed is returned once
// the deliveries stop, and the following call resubscribes.
func (q *amqpQueue) Pop(ctx context.Context, _ ...string) (string, Book, error) {
	var book Book
	deliveries, err := q.consume()
	if err != nil {
		return "", book, err
	}
	select {
	case <-ctx.Done():
		return "", book, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.dropSubscriber(deliveries)
			return "", book, ErrQueueClosed
		}
		if err = json.Unmarshal(d.Body, &book); err != nil {
			_ = d.Nack(false, false)
			return "", book, err
		}
		return d.RoutingKey, book, d.Ack(false)
	}
}

// Close releases channels and the connection. The queue cannot be reused.
func (q *amqpQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if q.sub != nil {
		q.sub.Close()
	}
	q.sub, q.deliveries = nil, nil
	if q.conn == nil || q.conn.IsClosed() {
		return nil
	}
	return q.conn.Close()
}
