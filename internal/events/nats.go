package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/bakery/internal/config"
	"git.home.luguber.info/inful/bakery/internal/retry"
)

const streamName = "BAKERY_BAKES"

// streamPublisher is the subset of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      streamPublisher
	subject string
	policy  retry.Policy
}

// NewNATSPublisher connects to NATS and makes sure a stream captures the
// configured subject hierarchy.
func NewNATSPublisher(ctx context.Context, cfg config.EventsConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("events are disabled")
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Bake lifecycle events",
		Subjects:    []string{cfg.Subject + ".>"},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	slog.Info("NATS publisher initialized for bake events",
		"url", cfg.NATSURL,
		"subject", cfg.Subject)
	return &NATSPublisher{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
		policy:  retry.NewPolicy(retry.Exponential, 200*time.Millisecond, 2*time.Second, cfg.Retries),
	}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return strings.TrimSuffix(p.subject, ".") + "." + string(t)
}

// Publish sends ev and waits for the stream acknowledgement, retrying
// failed attempts per the publisher's policy. The message ID lets the
// stream drop duplicates of a retried publish.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.Subject(ev.Type)
	msgID := ev.BakeID + "-" + string(ev.Type)
	err = p.policy.Do(ctx, func() error {
		actx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, perr := p.js.Publish(actx, subject, data, jetstream.WithMsgID(msgID))
		if perr != nil {
			slog.Debug("Publishing bake event failed", "type", ev.Type, "error", perr)
		}
		return perr
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	slog.Debug("Published bake event", "type", ev.Type, "bake_id", ev.BakeID)
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
