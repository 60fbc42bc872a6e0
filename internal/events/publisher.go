package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	streamName     = "AUTH_EVENTS"
	subjectPrefix  = "auth"
	connectTimeout = 10 * time.Second
)

// AuthEvent is the wire shape of an audit event on the stream.
type AuthEvent struct {
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher pushes authentication audit events to NATS JetStream. The DB
// audit rows remain the source of truth; the stream feeds live consumers.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger
}

// NewPublisher connects to NATS and ensures the auth event stream exists.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("crm-auth-service"),
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: conn, js: js, logger: logger}
	if err := p.ensureStream(); err != nil {
		logger.WithError(err).Warn("Failed to ensure auth event stream")
	}

	logger.WithField("url", natsURL).Info("Connected to NATS")
	return p, nil
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
}

// ensureStream creates the AUTH_EVENTS stream if it doesn't exist
func (p *Publisher) ensureStream() error {
	cfg := nats.StreamConfig{
		Name:        streamName,
		Description: "Authentication and activation audit events",
		Subjects:    []string{subjectPrefix + ".>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
		Replicas:    1,
	}

	_, err := p.js.StreamInfo(cfg.Name)
	if err == nats.ErrStreamNotFound {
		if _, err := p.js.AddStream(&cfg); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check stream: %w", err)
	}
	return nil
}

// Publish sends an audit event. Failures are logged and swallowed: the
// request that triggered the event must not fail because the stream is
// unreachable.
func (p *Publisher) Publish(ctx context.Context, action string, data map[string]interface{}) {
	if p.conn == nil || !p.conn.IsConnected() {
		p.logger.Warn("NATS not connected, skipping event publish")
		return
	}

	event := AuthEvent{
		Action:    action,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal auth event")
		return
	}

	if _, err := p.js.Publish(action, payload, nats.Context(ctx)); err != nil {
		p.logger.WithFields(logrus.Fields{
			"action": action,
		}).WithError(err).Error("Failed to publish auth event")
	}
}
