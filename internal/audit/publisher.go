package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"prepguard/internal/platform/metrics"
)

// Publisher captures structured audit entries. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
//
// The hot path is fail-open: Emit never returns an error to its caller. In
// async mode entries go onto a bounded channel drained by a background
// goroutine, and a full buffer drops the entry rather than blocking the
// triggering operation.
type Publisher struct {
	store   Store
	entries chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	async   bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.entries = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics sets the metrics collector.
func WithPublisherMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

// processEntries runs in a goroutine and persists entries from the channel.
func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.entries {
		if err := p.store.Append(context.Background(), entry); err != nil {
			p.recordWriteFailure(entry, err)
		}
	}
}

// Close shuts down the async publisher and waits for pending entries to drain.
func (p *Publisher) Close() {
	if p.async && p.entries != nil {
		close(p.entries)
		p.wg.Wait()
	}
}

// Emit records one entry. It never fails the caller: in sync mode a store
// error is logged and swallowed, in async mode a full buffer drops the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if p.async {
		select {
		case p.entries <- entry:
			if p.metrics != nil {
				p.metrics.AuditEventsEmitted.Inc()
			}
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, entry dropped",
					"action", entry.Action,
					"user_id", entry.UserID,
				)
			}
			if p.metrics != nil {
				p.metrics.AuditEventsDropped.Inc()
			}
		}
		return
	}
	if err := p.store.Append(ctx, entry); err != nil {
		p.recordWriteFailure(entry, err)
		return
	}
	if p.metrics != nil {
		p.metrics.AuditEventsEmitted.Inc()
	}
}

func (p *Publisher) recordWriteFailure(entry Entry, err error) {
	if p.logger != nil {
		p.logger.Error("failed to persist audit entry",
			"error", err,
			"action", entry.Action,
			"user_id", entry.UserID,
		)
	}
	if p.metrics != nil {
		p.metrics.AuditWriteFailures.Inc()
	}
}
