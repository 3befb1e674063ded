package kafka

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/duel-lords/internal/domain"
)

const (
	applyAttempts = 3
	applyBackoff  = 200 * time.Millisecond
	applyTimeout  = 10 * time.Second

	// recentEventIDs bounds the redelivery filter
	recentEventIDs = 4096
)

// ConsumerStats counts what the consumer did with the messages it received
type ConsumerStats struct {
	Received   int64 `json:"received"`
	Applied    int64 `json:"applied"`
	Skipped    int64 `json:"skipped"`
	Malformed  int64 `json:"malformed"`
	Duplicates int64 `json:"duplicates"`
	Dropped    int64 `json:"dropped"`
}

type counters struct {
	received, applied, skipped, malformed, duplicates, dropped atomic.Int64
}

func (c *counters) snapshot() ConsumerStats {
	return ConsumerStats{
		Received:   c.received.Load(),
		Applied:    c.applied.Load(),
		Skipped:    c.skipped.Load(),
		Malformed:  c.malformed.Load(),
		Duplicates: c.duplicates.Load(),
		Dropped:    c.dropped.Load(),
	}
}

// eventFilter remembers the most recent event ids so a redelivered message
// is not counted twice. Events without an id always pass. Partition claims
// share one filter.
type eventFilter struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newEventFilter(capacity int) *eventFilter {
	return &eventFilter{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

func (f *eventFilter) seen(id string) bool {
	if id == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

func (f *eventFilter) remember(id string) {
	if id == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return
	}
	if old := f.ring[f.next]; old != "" {
		delete(f.ids, old)
	}
	f.ring[f.next] = id
	f.ids[id] = struct{}{}
	f.next = (f.next + 1) % len(f.ring)
}

// statsBatch collects decoded stats events from one partition claim. Offsets
// are marked only after the events before them were flushed.
type statsBatch struct {
	handler StatsHandler
	logger  *slog.Logger
	size    int
	filter  *eventFilter
	counts  *counters
	mark    func(*sarama.ConsumerMessage)

	events []domain.StatsEvent
	last   *sarama.ConsumerMessage
}

func newStatsBatch(handler StatsHandler, size int, filter *eventFilter, counts *counters,
	mark func(*sarama.ConsumerMessage), logger *slog.Logger) *statsBatch {
	return &statsBatch{
		handler: handler,
		logger:  logger,
		size:    size,
		filter:  filter,
		counts:  counts,
		mark:    mark,
		events:  make([]domain.StatsEvent, 0, size),
	}
}

// add decodes a message into the batch and reports whether the batch is full
func (b *statsBatch) add(msg *sarama.ConsumerMessage) bool {
	b.counts.received.Add(1)
	b.last = msg

	event, err := DecodeEvent(msg.Value)
	if err != nil {
		b.counts.malformed.Add(1)
		b.logger.Warn("skipping stats message",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return false
	}
	if b.filter.seen(event.EventID) || b.pending(event.EventID) {
		b.counts.duplicates.Add(1)
		b.logger.Debug("skipping redelivered stats event",
			"event_id", event.EventID,
			"offset", msg.Offset,
		)
		return false
	}

	b.events = append(b.events, event)
	return len(b.events) >= b.size
}

func (b *statsBatch) pending(id string) bool {
	if id == "" {
		return false
	}
	for _, e := range b.events {
		if e.EventID == id {
			return true
		}
	}
	return false
}

// flush applies the collected events, retrying store failures, then marks
// the last message. Events still failing after the last attempt are logged
// one by one and dropped.
func (b *statsBatch) flush(ctx context.Context) {
	if b.last == nil {
		return
	}
	last := b.last
	events := b.events
	b.events = make([]domain.StatsEvent, 0, b.size)
	b.last = nil

	if len(events) > 0 {
		b.apply(ctx, events, last)
	}
	b.mark(last)
}

func (b *statsBatch) apply(ctx context.Context, events []domain.StatsEvent, last *sarama.ConsumerMessage) {
	var err error
	for attempt := 1; attempt <= applyAttempts; attempt++ {
		applyCtx, cancel := context.WithTimeout(ctx, applyTimeout)
		var applied int
		applied, err = b.handler.ApplyStatsBatch(applyCtx, events)
		cancel()
		if err == nil {
			b.counts.applied.Add(int64(applied))
			b.counts.skipped.Add(int64(len(events) - applied))
			for _, e := range events {
				b.filter.remember(e.EventID)
			}
			b.logger.Debug("stats batch flushed",
				"batch_size", len(events),
				"applied", applied,
				"skipped", len(events)-applied,
				"partition", last.Partition,
				"offset", last.Offset,
			)
			return
		}

		b.logger.Warn("failed to apply stats batch",
			"attempt", attempt,
			"batch_size", len(events),
			"error", err,
		)
		if attempt == applyAttempts || !sleep(ctx, applyBackoff*time.Duration(attempt)) {
			break
		}
	}

	b.counts.dropped.Add(int64(len(events)))
	for _, e := range events {
		b.logger.Error("dropping stats event",
			"event_id", e.EventID,
			"discord_id", e.DiscordID,
			"match_id", e.MatchID,
			"error", err,
		)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
