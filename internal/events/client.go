// Package events publishes best-effort container lifecycle notifications
// over NATS JetStream. Publish failures are logged and swallowed: nothing
// downstream of the reconciler depends on delivery, matching the
// teacher's nats/client.go treatment of its own lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"nebulous/internal/config"
)

const streamName = "CONTAINER_EVENTS"

// Client wraps a JetStream-backed publisher for container lifecycle
// events, handling connection, reconnect, and stream provisioning.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// ContainerEvent is published whenever the reconciler observes a
// meaningful status transition.
type ContainerEvent struct {
	Type        string    `json:"type"` // declared, reconciled, deleted, failed
	ContainerID string    `json:"container_id"`
	Namespace   string    `json:"namespace"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

func NewClient(cfg config.NATSConfig) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectBufSize(8*1024*1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("events: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("events: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("events: async error: %v", err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Println("events: connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"container.>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		MaxMsgs:   100_000,
		Discard:   nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		conn.Close()
		return nil, fmt.Errorf("events: ensure stream: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// PublishDeclared, PublishReconciled, PublishDeleted, PublishFailed all
// make up to 3 publish attempts, waiting 1s and then 2s between them, since
// these events matter for audit trails and external subscribers like billing;
// a nil client logs and returns nil rather than failing the caller.
func (c *Client) publish(ctx context.Context, subject string, evt ContainerEvent) error {
	if c == nil || c.js == nil {
		log.Printf("events: no connection, dropping %s event for %s", evt.Type, evt.ContainerID)
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
		_, lastErr = c.js.Publish(subject, data)
		if lastErr == nil {
			return nil
		}
	}
	log.Printf("events: publish %s failed after retries: %v", subject, lastErr)
	return lastErr
}

func (c *Client) PublishDeclared(ctx context.Context, evt ContainerEvent) error {
	evt.Type = "declared"
	return c.publish(ctx, "container.declared", evt)
}

func (c *Client) PublishReconciled(ctx context.Context, evt ContainerEvent) error {
	evt.Type = "reconciled"
	return c.publish(ctx, "container.reconciled", evt)
}

func (c *Client) PublishDeleted(ctx context.Context, evt ContainerEvent) error {
	evt.Type = "deleted"
	return c.publish(ctx, "container.deleted", evt)
}

func (c *Client) PublishFailed(ctx context.Context, evt ContainerEvent) error {
	evt.Type = "failed"
	return c.publish(ctx, "container.failed", evt)
}
