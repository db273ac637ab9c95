package auctionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultSubjectPrefix = "rtb.auctions"
	DefaultStreamName    = "RTB_AUCTIONS"
)

// streamPublisher is the subset of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes records to JetStream on "<prefix>.<account_id>".
// The record id is sent as the message id so retried publishes are de-duplicated by the server.
type NATSPublisher struct {
	js       streamPublisher
	prefix   string
	attempts int
	timeout  time.Duration
	newBO    func() *backoff.Backoff
	log      *slog.Logger
}

// ConnectNATS dials url, ensures the auction stream exists and returns a publisher plus the
// connection (the caller drains it on shutdown).
func ConnectNATS(ctx context.Context, url, prefix string, log *slog.Logger) (*NATSPublisher, *nats.Conn, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := nats.Connect(url, nats.Name("callcenter-rtb"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("auctionlog: connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("auctionlog: jetstream context: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        DefaultStreamName,
		Description: "Resolved RTB auctions",
		Subjects:    []string{prefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("auctionlog: ensure stream: %w", err)
	}
	return NewNATSPublisher(js, prefix, log), nc, nil
}

func NewNATSPublisher(js streamPublisher, prefix string, log *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSPublisher{
		js:       js,
		prefix:   prefix,
		attempts: 3,
		timeout:  2 * time.Second,
		newBO: func() *backoff.Backoff {
			return &backoff.Backoff{Min: 50 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: true}
		},
		log: log,
	}
}

func (p *NATSPublisher) Subject(accountID string) string {
	return p.prefix + "." + subjectToken(accountID)
}

// Publish retries with backoff; it gives up early when ctx is done.
func (p *NATSPublisher) Publish(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("auctionlog: marshal record: %w", err)
	}
	subject := p.Subject(r.AccountID)
	bo := p.newBO()

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		ack, err := p.js.Publish(pctx, subject, data, jetstream.WithMsgID(r.ID))
		cancel()
		if err == nil {
			p.log.Debug("auction record published", "subject", subject, "seq", ack.Sequence, "duplicate", ack.Duplicate)
			return nil
		}
		lastErr = err
		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("auctionlog: publish: %w", ctx.Err())
		case <-time.After(bo.Duration()):
		}
	}
	return fmt.Errorf("auctionlog: publish after %d attempts: %w", p.attempts, lastErr)
}

// subjectToken keeps a value usable as a single NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
