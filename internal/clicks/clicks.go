// Package clicks moves click events off the request path: the server publishes one event per
// resolution on NATS and a worker folds them into batched store increments.
package clicks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

type Event struct {
	Code string    `json:"code"`
	At   time.Time `json:"at"`
}

// Connect dials NATS with reconnects enabled for long-running processes.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

type Publisher struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject, now: time.Now}
}

// RecordClick publishes at most once; core NATS gives no delivery guarantee.
func (p *Publisher) RecordClick(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{Code: code, At: p.now().UTC()})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish click: %w", err)
	}
	return nil
}
