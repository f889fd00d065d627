package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events on a channel and publishes them to Kafka in
// batches, flushing when a batch fills or the flush interval elapses. Track
// never blocks; events are dropped when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
			}
			batch = batch[:0]
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flush(context.Background())
					return
				}
				batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
				if len(batch) >= c.batchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.drainInto(&batch)
				flush(drainCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event without blocking.
func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush. Start must
// have been called.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drainInto(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: eventKey(event), Value: event})
		default:
			return
		}
	}
}

func eventKey(event any) string {
	switch event.(type) {
	case SearchEvent:
		return string(EventSearch)
	case UploadEvent:
		return string(EventUpload)
	default:
		return "analytics"
	}
}
