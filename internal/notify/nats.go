// Package notify forwards stored notifications to NATS so other services can
// react to them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erp-server/internal/core"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPrefix is followed by the notification type, e.g. erp.notifications.approval.
const SubjectPrefix = "erp.notifications."

// Event is the JSON body published for every notification.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements core.NotificationPublisher. Publish failures are
// logged and never returned.
type Publisher struct {
	nc  conn
	log zerolog.Logger
}

// Connect dials url and returns a publisher. Reconnects are handled by the
// nats client.
func Connect(url string, log zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("erp-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &Publisher{nc: nc, log: log}, nil
}

func newPublisher(nc conn, log zerolog.Logger) *Publisher {
	return &Publisher{nc: nc, log: log}
}

func Subject(notificationType string) string {
	return SubjectPrefix + notificationType
}

func (p *Publisher) Publish(_ context.Context, n core.Notification) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(Event{
		ID:        n.ID.String(),
		UserID:    n.UserID.String(),
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("type", n.Type).Msg("notification: failed to marshal event")
		return
	}
	subject := Subject(n.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("notification_id", n.ID.String()).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}
	p.log.Debug().Str("subject", subject).Str("user_id", n.UserID.String()).Msg("notification: event published")
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
