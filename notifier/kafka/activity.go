package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	account "github.com/studyolle/go-account"
	"github.com/studyolle/go-account/activitymap"
)

// ActivitySink publishes normalized activity records keyed by object id
type ActivitySink struct {
	writer  MessageWriter
	timeout time.Duration
	opts    []activitymap.Option
}

var _ account.ActivitySink = (*ActivitySink)(nil)

// NewActivitySink returns a sink writing to cfg.Topic
func NewActivitySink(cfg Config, opts ...activitymap.Option) (*ActivitySink, error) {
	w, timeout, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewActivitySinkWithWriter(w, timeout, opts...), nil
}

func NewActivitySinkWithWriter(w MessageWriter, timeout time.Duration, opts ...activitymap.Option) *ActivitySink {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &ActivitySink{writer: w, timeout: timeout, opts: opts}
}

func (s *ActivitySink) Record(ctx context.Context, event account.ActivityEvent) error {
	if s == nil || s.writer == nil {
		return errors.New("kafka activity sink is not initialized")
	}

	record := activitymap.Normalize(event, s.opts...)
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(record.ObjectID),
		Value: value,
		Time:  record.OccurredAt,
	})
}

func (s *ActivitySink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
