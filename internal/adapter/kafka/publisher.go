package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-timeline/internal/config"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
)

const (
	publishQueueSize = 256
	publishBatchMax  = 64
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces week-change events to the selection topic. Publish never
// blocks the caller; events are dropped when the queue is full.
type Publisher struct {
	writer  messageWriter
	queue   chan domain.WeekChange
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured selection topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSelectionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, logger, metrics)
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		writer:  w,
		queue:   make(chan domain.WeekChange, publishQueueSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Publish queues a change for delivery. It is safe to call from the session
// loop.
func (p *Publisher) Publish(change domain.WeekChange) {
	select {
	case p.queue <- change:
	default:
		p.metrics.WeekChangesPublished.WithLabelValues("dropped").Inc()
	}
}

// Run writes queued changes until ctx is cancelled, grouping whatever is
// already queued into one WriteMessages call.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("week change publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("week change publisher stopping", "reason", ctx.Err())
			return nil
		case change := <-p.queue:
			batch := []domain.WeekChange{change}
		fill:
			for len(batch) < publishBatchMax {
				select {
				case next := <-p.queue:
					batch = append(batch, next)
				default:
					break fill
				}
			}
			p.write(ctx, batch)
		}
	}
}

func (p *Publisher) write(ctx context.Context, batch []domain.WeekChange) {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, change := range batch {
		msg, err := serializeWeekChange(change)
		if err != nil {
			p.logger.Warn("serialize week change failed", "error", err, "week", change.Week)
			p.metrics.WeekChangesPublished.WithLabelValues("error").Inc()
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		if ctx.Err() == nil {
			p.logger.Error("publish week changes failed", "error", err, "count", len(msgs))
		}
		p.metrics.WeekChangesPublished.WithLabelValues("error").Add(float64(len(msgs)))
		return
	}
	p.metrics.WeekChangesPublished.WithLabelValues("success").Add(float64(len(msgs)))
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeWeekChange marshals a WeekChange into a Kafka message keyed by week.
func serializeWeekChange(change domain.WeekChange) (kafkago.Message, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize week change: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(change.Week)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(change.Reason)},
			{Key: "changed_at", Value: []byte(change.ChangedAt.Format(time.RFC3339))},
		},
	}, nil
}
