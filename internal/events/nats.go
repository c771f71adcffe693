// Package events announces feed refreshes on NATS so other processes can
// react to new realtime data without polling the upstream themselves.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "tfibus.feed.refreshed"

// FeedRefreshed is published after every successful upstream fetch.
type FeedRefreshed struct {
	FetchedAt     time.Time `json:"fetchedAt"`
	Entities      int       `json:"entities"`
	FeedTimestamp uint64    `json:"feedTimestamp,omitempty"`
}

// Metrics receives publisher counters. The metrics.Collector satisfies it.
type Metrics interface {
	EventPublished(err error)
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// Publisher sends FeedRefreshed events. A nil *Publisher is valid and
// publishes nothing.
type Publisher struct {
	nc      conn
	subject string
	metrics Metrics
	logger  *slog.Logger
}

// Connect dials url and returns a Publisher on subject.
func Connect(url, subject string, m Metrics, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tfibus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, subject, m, logger), nil
}

func newPublisher(nc conn, subject string, m Metrics, logger *slog.Logger) *Publisher {
	if subject = sanitizeSubject(subject); subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject, metrics: m, logger: logger}
}

// FeedRefreshed publishes ev. Publishing is fire-and-forget on the NATS
// side; the returned error only covers encoding and local buffering.
func (p *Publisher) FeedRefreshed(_ context.Context, ev FeedRefreshed) error {
	if p == nil || p.nc == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode feed refreshed event: %w", err)
	}
	err = p.nc.Publish(p.subject, b)
	if p.metrics != nil {
		p.metrics.EventPublished(err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("feed refreshed event published", "subject", p.subject, "entities", ev.Entities)
	return nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string {
	if p == nil {
		return ""
	}
	return p.subject
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain", "error", err)
	}
	p.nc.Close()
}

// sanitizeSubject cleans each dot-separated token. Wildcards and whitespace
// are not allowed in a publish subject.
func sanitizeSubject(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return ""
	}
	repl := strings.NewReplacer(" ", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	parts := strings.Split(s, ".")
	for i, p := range parts {
		p = repl.Replace(p)
		if p == "" {
			p = "_"
		}
		parts[i] = p
	}
	return strings.Join(parts, ".")
}
