package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "live.session."

// NATSConfig holds connection settings for the NATS transport.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns defaults suitable for local development.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATS uses core NATS subjects (no JetStream): runtime messages are ephemeral
// and guests recover from the persisted snapshot.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS opens a connection with reconnect logging.
func ConnectNATS(cfg NATSConfig) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn) *NATS {
	return &NATS{nc: nc}
}

func subject(sessionID string) string {
	return subjectPrefix + sessionID
}

func (n *NATS) Publish(_ context.Context, sessionID string, payload []byte) error {
	if err := n.nc.Publish(subject(sessionID), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error) {
	sub, err := n.nc.Subscribe(subject(sessionID), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	cancel := releaseOnDone(ctx, func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to unsubscribe from NATS")
		}
	})
	return cancel, nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
