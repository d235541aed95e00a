package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// AuditHandler processes one decoded audit message. A returned error naks
// the message for redelivery.
type AuditHandler func(ctx context.Context, msg AuditMessage) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// DecodeAudit parses a message payload. Malformed payloads are terminal.
func DecodeAudit(data []byte) (AuditMessage, error) {
	var m AuditMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return AuditMessage{}, fmt.Errorf("decode audit message: %w", err)
	}
	if m.Action == "" {
		m.Action = m.Outcome.Action()
	}
	return m, nil
}

// dispatch acks, naks or terminates msg depending on the handler result.
func dispatch(ctx context.Context, msg jetstream.Msg, handler AuditHandler) error {
	m, err := DecodeAudit(msg.Data())
	if err != nil {
		_ = msg.Term()
		return err
	}
	if err := handler(ctx, m); err != nil {
		_ = msg.Nak()
		return err
	}
	_ = msg.Ack()
	return nil
}

// ConsumeAudit starts a durable consumer on the AUDIT stream.
// workerCount determines how many goroutines process messages concurrently.
// It returns once the workers are running; they stop when ctx ends.
func (c *Consumer) ConsumeAudit(ctx context.Context, consumerName string, handler AuditHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, AuditStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AuditStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: AuditSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch audit messages", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				if err := dispatch(ctx, msg, handler); err != nil {
					slog.Error("process audit message", "worker", workerID, "error", err, "subject", msg.Subject())
				}
			}
		}(i)
	}

	slog.Info("audit consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeLive delivers new audit messages to handler, for fanning out to
// WebSocket clients. Each API replica uses its own consumer name.
func (c *Consumer) ConsumeLive(ctx context.Context, consumerName string, handler AuditHandler) error {
	stream, err := c.js.Stream(ctx, AuditStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AuditStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        1,
		FilterSubject:     AuditSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := dispatch(ctx, msg, handler); err != nil {
					slog.Error("process live audit message", "error", err)
				}
			}
		}
	}()

	slog.Info("live audit consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
