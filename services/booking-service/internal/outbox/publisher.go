package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/garagebook/garagebook/libs/kafkax"
	otelx "github.com/garagebook/garagebook/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Queue is an in-process outbox, such as the memory store's pending events.
type Queue interface {
	PendingEvents(limit int) []Event
	AckEvents(eventIDs []string)
}

// Publisher relays committed outbox rows to Kafka. Delivery is at least once;
// a failed batch stays unpublished and is retried on the next tick.
type Publisher struct {
	repo      *Repository
	queue     Queue
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := newPublisher(logger, cfg)
	p.repo = repo
	return p
}

// NewQueuePublisher relays events held by an in-process queue instead of the
// outbox table.
func NewQueuePublisher(queue Queue, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := newPublisher(logger, cfg)
	p.queue = queue
	return p
}

func newPublisher(logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	if p.queue != nil {
		return p.publishQueued(ctx, writer)
	}
	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, Message(ctx, r.Event))
		ids = append(ids, r.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

func (p *Publisher) publishQueued(ctx context.Context, writer MessageWriter) (int, error) {
	events := p.queue.PendingEvents(p.batchSize)
	if len(events) == 0 {
		return 0, nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, evt := range events {
		msgs = append(msgs, Message(ctx, evt))
		ids = append(ids, evt.EventID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	p.queue.AckEvents(ids)
	return len(events), nil
}

// Message converts an outbox event to a Kafka message keyed by aggregate id, so
// events for one booking stay ordered within a partition.
func Message(ctx context.Context, evt Event) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, evt.Traceparent, evt.Tracestate)
	msg := kafka.Message{
		Topic:   evt.EventType,
		Key:     []byte(evt.AggregateID),
		Value:   evt.Payload,
		Headers: kafkax.EventMeta{EventID: evt.EventID, EventType: evt.EventType}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
