// Package bus wraps a NATS connection with JSON publish and subscribe helpers.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"mediaconv/internal/logging"
)

const handlerTimeout = 30 * time.Second

// Client is a NATS connection.
type Client struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// Connect dials url and keeps reconnecting for the lifetime of the client.
func Connect(url string, logger *slog.Logger) (*Client, error) {
	logger = logging.NewComponentLogger(logger, "bus")
	nc, err := nats.Connect(url,
		nats.Name("mediaconv"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(logger, "nats disconnected", "bus_disconnected",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check nats server availability"),
					logging.String(logging.FieldImpact, "engine hand-off paused until reconnect"),
				)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", logging.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, logger: logger}, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c != nil && c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribeJSON invokes handler for every message on subject with a bounded
// context.
func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		handler(ctx, msg.Data)
	})
}
