package broker

import (
	"context"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const exchangeName = "bulkmail.wakeups"

// AMQP is the multi-process Broker, grounded on the teacher's RabbitMQ
// wiring in cmd/worker/main.go (durable queue declare + Consume loop) and
// campaign_controller.go (Dial + Channel + Publish on the request path),
// switched from a direct queue to a fanout exchange since every worker
// process needs its own copy of each wakeup.
type AMQP struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

func NewAMQP(url string, log *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQP{conn: conn, ch: ch, log: log}, nil
}

func (b *AMQP) Publish(ctx context.Context, campaignID string) error {
	return b.ch.Publish(exchangeName, "", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(campaignID),
	})
}

func (b *AMQP) Subscribe(ctx context.Context) (<-chan string, error) {
	q, err := b.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := b.ch.QueueBind(q.Name, "", exchangeName, false, nil); err != nil {
		return nil, err
	}
	deliveries, err := b.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- string(d.Body):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQP) Close() error {
	if err := b.ch.Close(); err != nil {
		b.log.Warn("broker channel close failed", zap.Error(err))
	}
	return b.conn.Close()
}

var _ Broker = (*AMQP)(nil)
