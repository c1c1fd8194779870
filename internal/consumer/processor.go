// Package consumer reads activity events from Kafka and turns each into a
// persisted recommendation.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrMalformedMessage marks messages that can never be handled and must be
// committed to avoid poison-pill loops.
var ErrMalformedMessage = errors.New("malformed message")

const defaultConcurrency = 8

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of an inbound Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       string
	EventType string // optional event_type header
	Payload   []byte
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithConcurrency bounds the number of messages handled at once.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Processor pulls messages from Kafka and dispatches them to a Handler.
// Messages are handled concurrently but committed in fetch order.
type Processor struct {
	reader      Reader
	handler     Handler
	logger      *slog.Logger
	concurrency int
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:      reader,
		handler:     handler,
		logger:      slog.Default().With("component", "consumer"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type inflight struct {
	msg    kafka.Message
	commit bool
	done   chan struct{}
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
// Handlers already started are allowed to finish and be committed before Run returns.
func (p *Processor) Run(ctx context.Context) error {
	pending := make(chan *inflight, p.concurrency)
	committerDone := make(chan struct{})
	go func() {
		defer close(committerDone)
		p.commitInOrder(pending)
	}()

	err := p.fetchLoop(ctx, pending)
	close(pending)
	<-committerDone
	return err
}

func (p *Processor) fetchLoop(ctx context.Context, pending chan<- *inflight) error {
	slots := make(chan struct{}, p.concurrency)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("fetch error", "error", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn("decode error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			item := &inflight{msg: msg, commit: true, done: make(chan struct{})}
			close(item.done)
			pending <- item
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		item := &inflight{msg: msg, done: make(chan struct{})}
		pending <- item
		go func() {
			defer func() { <-slots }()
			defer close(item.done)
			item.commit = p.handle(ctx, event)
		}()
	}
}

// handle runs the handler and reports whether the message should be committed.
func (p *Processor) handle(ctx context.Context, event Message) bool {
	err := p.handler.Handle(ctx, event)
	switch {
	case err == nil:
		recordProcessed(event)
		return true
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		p.logger.Info("handler interrupted by shutdown, message left uncommitted", "topic", event.Topic, "partition", event.Partition, "offset", event.Offset)
		return false
	case errors.Is(err, ErrMalformedMessage):
		p.logger.Warn("discarding malformed message", "topic", event.Topic, "offset", event.Offset, "error", err)
		recordDecodeError(event.Topic)
		return true
	default:
		p.logger.Error("handler error", "topic", event.Topic, "event_type", event.EventType, "offset", event.Offset, "error", err)
		recordHandlerError(event)
		return false
	}
}

type partitionKey struct {
	topic     string
	partition int
}

// commitInOrder commits finished messages in fetch order. Once a message is
// left uncommitted, later offsets of its partition are held back too, since
// committing them would skip it.
func (p *Processor) commitInOrder(pending <-chan *inflight) {
	held := map[partitionKey]bool{}
	for item := range pending {
		<-item.done
		key := partitionKey{topic: item.msg.Topic, partition: item.msg.Partition}
		if !item.commit {
			held[key] = true
			continue
		}
		if held[key] {
			continue
		}
		// The fetch context may already be cancelled; commit what finished anyway.
		commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.reader.CommitMessages(commitCtx, item.msg); err != nil {
			p.logger.Error("commit error", "topic", item.msg.Topic, "offset", item.msg.Offset, "error", err)
		}
		cancel()
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	eventType, _ := headerValue(msg, "event_type")
	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Key:       string(msg.Key),
		EventType: string(eventType),
		Payload:   append([]byte(nil), msg.Value...),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
