/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/telemetry"
)

// NATSBus fans events out through core NATS subjects. Like RedisBus it
// serves local subscribers from an in-memory bus, and it keeps working
// locally when the server is unreachable at startup.
type NATSBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu   sync.Mutex
	subs map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Subjects are SubjectPrefix + event type.
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "trainagent.events.",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS. Connection failure leaves the bus in
// local-only mode.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) *NATSBus {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()

	nb := &NATSBus{
		logger: logger,
		local:  events.NewBus(),
		nodeID: nodeID,
		prefix: cfg.SubjectPrefix,
		subs:   make(map[events.EventType]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name("train-agent " + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory fallback")
		return nb
	}
	nb.conn = conn

	logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return nb.prefix + string(eventType)
}

// Subscribe registers a local subscriber and, on first use of an event type,
// a NATS subscription feeding it.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, exists := nb.subs[eventType]; exists {
		return sub
	}

	natsSub, err := nb.conn.Subscribe(nb.subject(eventType), func(m *nats.Msg) {
		nb.deliver(m.Data)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to subscribe to NATS subject")
		return sub
	}
	nb.subs[eventType] = natsSub
	return sub
}

func (nb *NATSBus) deliver(data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
		return
	}
	if msg.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(msg.EventType, msg.Payload)
}

// Publish delivers payload to local subscribers and to other nodes.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(nb.subject(eventType), data); err != nil {
		telemetry.EventBusPublishErrorsTotal.WithLabelValues("nats").Inc()
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a local subscriber and drops the NATS subscription once
// nobody listens to the event type.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
	if nb.local.Subscribers(eventType) > 0 {
		return
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if natsSub, exists := nb.subs[eventType]; exists {
		_ = natsSub.Unsubscribe()
		delete(nb.subs, eventType)
	}
}

// Close drains the connection so in-flight messages are delivered.
func (nb *NATSBus) Close() error {
	defer nb.local.Close()
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	nb.logger.Info().Msg("NATS event bus closed")
	return nil
}
