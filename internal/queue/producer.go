package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

const (
	AuditStreamName  = "AUDIT"
	AuditSubjectBase = "audit"
)

// AuditMessage is the JetStream payload for one verification outcome.
type AuditMessage struct {
	Action  models.AuditAction         `json:"action"`
	Outcome models.VerificationOutcome `json:"outcome"`
}

// AuditSubject returns the subject an outcome is published on, e.g.
// "audit.access_granted".
func AuditSubject(action models.AuditAction) string {
	return AuditSubjectBase + "." + strings.ToLower(string(action))
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// Producer publishes verification outcomes. It implements the engine's audit
// sink.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the AUDIT stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        AuditStreamName,
		Subjects:    []string{AuditSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  2 * time.Minute,
		Description: "Access decisions awaiting the audit log",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// Record publishes the outcome with its id as the dedup key.
func (p *Producer) Record(ctx context.Context, out *models.VerificationOutcome) error {
	payload, err := json.Marshal(AuditMessage{Action: out.Action(), Outcome: *out})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	_, err = p.js.Publish(ctx, AuditSubject(out.Action()), payload, jetstream.WithMsgID(out.ID.String()))
	if err != nil {
		observability.AuditRecords.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish audit message: %w", err)
	}
	observability.AuditRecords.WithLabelValues("nats", "ok").Inc()
	return nil
}

// Backlog returns the number of messages held in the AUDIT stream.
func (p *Producer) Backlog(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, AuditStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
