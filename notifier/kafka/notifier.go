// Package kafka publishes verification events to a Kafka topic so a
// separate mail service can deliver them.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	account "github.com/studyolle/go-account"
)

// DefaultWriteTimeout bounds a single publish
const DefaultWriteTimeout = 10 * time.Second

// VerifyEmailEvent is the payload published for every verification message
type VerifyEmailEvent struct {
	AccountID string     `json:"account_id"`
	Email     string     `json:"email"`
	Nickname  string     `json:"nickname"`
	Token     string     `json:"token"`
	Link      string     `json:"link"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MessageWriter is the subset of kafka.Writer we use
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config describes the broker connection
type Config struct {
	Brokers      []string
	Topic        string
	Username     string
	Password     string
	TLS          bool
	WriteTimeout time.Duration
}

// Notifier implements account.Notifier on top of a Kafka writer
type Notifier struct {
	writer  MessageWriter
	timeout time.Duration
	now     func() time.Time
}

var _ account.Notifier = (*Notifier)(nil)

// New returns a notifier writing to cfg.Topic
func New(cfg Config) (*Notifier, error) {
	w, timeout, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(w, timeout), nil
}

func newWriter(cfg Config) (*kafkago.Writer, time.Duration, error) {
	if len(cfg.Brokers) == 0 {
		return nil, 0, errors.New("kafka writer needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, 0, errors.New("kafka writer needs a topic")
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
		WriteTimeout: timeout,
	}

	if cfg.Username != "" || cfg.TLS {
		transport := &kafkago.Transport{}
		if cfg.Username != "" {
			transport.SASL = plain.Mechanism{
				Username: cfg.Username,
				Password: cfg.Password,
			}
		}
		if cfg.TLS {
			transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		writer.Transport = transport
	}

	return writer, timeout, nil
}

// NewWithWriter wraps an existing writer
func NewWithWriter(w MessageWriter, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Notifier{
		writer:  w,
		timeout: timeout,
		now:     time.Now,
	}
}

// SendVerification publishes msg keyed by the account id
func (n *Notifier) SendVerification(ctx context.Context, msg account.VerificationMessage) error {
	if n == nil || n.writer == nil {
		return errors.New("kafka notifier is not initialized")
	}

	value, err := json.Marshal(NewVerifyEmailEvent(msg))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.AccountID),
		Value: value,
		Time:  n.now(),
	})
}

// Close flushes and closes the underlying writer
func (n *Notifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

// NewVerifyEmailEvent maps a verification message to its wire event
func NewVerifyEmailEvent(msg account.VerificationMessage) VerifyEmailEvent {
	return VerifyEmailEvent{
		AccountID: msg.AccountID,
		Email:     msg.To,
		Nickname:  msg.Nickname,
		Token:     msg.Token,
		Link:      msg.Link,
		ExpiresAt: msg.ExpiresAt,
	}
}
