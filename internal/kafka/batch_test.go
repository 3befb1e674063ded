package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	batches  [][]domain.StatsEvent
	failures int
	skip     int
}

func (f *fakeHandler) ApplyStatsBatch(_ context.Context, events []domain.StatsEvent) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("database is locked")
	}
	f.batches = append(f.batches, append([]domain.StatsEvent(nil), events...))
	return len(events) - f.skip, nil
}

type marks struct {
	offsets []int64
}

func (m *marks) mark(msg *sarama.ConsumerMessage) {
	m.offsets = append(m.offsets, msg.Offset)
}

func statsMessage(offset int64, eventID string) *sarama.ConsumerMessage {
	payload := fmt.Sprintf(`{"event_id":%q,"discord_id":"123456789012345678","wins":1,"kills":2}`, eventID)
	return &sarama.ConsumerMessage{Offset: offset, Value: []byte(payload)}
}

func newTestBatch(h StatsHandler, size int) (*statsBatch, *marks, *counters) {
	m := &marks{}
	counts := &counters{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newStatsBatch(h, size, newEventFilter(8), counts, m.mark, logger), m, counts
}

func TestBatchFillsAndFlushes(t *testing.T) {
	h := &fakeHandler{}
	b, m, counts := newTestBatch(h, 2)

	assert.False(t, b.add(statsMessage(10, "e1")))
	assert.True(t, b.add(statsMessage(11, "e2")))
	b.flush(context.Background())

	require.Len(t, h.batches, 1)
	assert.Len(t, h.batches[0], 2)
	assert.Equal(t, []int64{11}, m.offsets)
	assert.Equal(t, ConsumerStats{Received: 2, Applied: 2}, counts.snapshot())

	// Nothing new since the last flush
	b.flush(context.Background())
	assert.Len(t, h.batches, 1)
	assert.Equal(t, []int64{11}, m.offsets)
}

func TestBatchSkipsMalformedButMarksThem(t *testing.T) {
	h := &fakeHandler{}
	b, m, counts := newTestBatch(h, 10)

	b.add(&sarama.ConsumerMessage{Offset: 4, Value: []byte(`{"discord_id":`)})
	b.add(&sarama.ConsumerMessage{Offset: 5, Value: []byte(`{"discord_id":"nope","wins":1}`)})
	b.flush(context.Background())

	assert.Empty(t, h.batches)
	assert.Equal(t, []int64{5}, m.offsets)
	assert.Equal(t, int64(2), counts.snapshot().Malformed)
}

func TestBatchDropsRedeliveredEvents(t *testing.T) {
	h := &fakeHandler{}
	b, _, counts := newTestBatch(h, 10)

	b.add(statsMessage(1, "e1"))
	b.add(statsMessage(2, "e1"))
	b.flush(context.Background())

	b.add(statsMessage(3, "e1"))
	b.add(statsMessage(4, ""))
	b.add(statsMessage(5, ""))
	b.flush(context.Background())

	require.Len(t, h.batches, 2)
	assert.Len(t, h.batches[0], 1)
	assert.Len(t, h.batches[1], 2, "events without an id are never treated as duplicates")
	assert.Equal(t, int64(2), counts.snapshot().Duplicates)
}

func TestBatchRetriesStoreFailures(t *testing.T) {
	h := &fakeHandler{failures: 1}
	b, m, counts := newTestBatch(h, 10)

	b.add(statsMessage(1, "e1"))
	b.flush(context.Background())

	require.Len(t, h.batches, 1)
	assert.Equal(t, []int64{1}, m.offsets)
	assert.Equal(t, int64(1), counts.snapshot().Applied)
	assert.Zero(t, counts.snapshot().Dropped)
}

func TestBatchDropsAfterLastAttempt(t *testing.T) {
	h := &fakeHandler{failures: applyAttempts}
	b, m, counts := newTestBatch(h, 10)

	b.add(statsMessage(1, "e1"))
	b.add(statsMessage(2, "e2"))
	b.flush(context.Background())

	assert.Empty(t, h.batches)
	assert.Equal(t, []int64{2}, m.offsets)
	assert.Equal(t, int64(2), counts.snapshot().Dropped)

	// Dropped events are not remembered, so a redelivery is applied
	b.add(statsMessage(3, "e1"))
	b.flush(context.Background())
	require.Len(t, h.batches, 1)
}

func TestBatchCountsSkippedEvents(t *testing.T) {
	h := &fakeHandler{skip: 1}
	b, _, counts := newTestBatch(h, 10)

	b.add(statsMessage(1, "e1"))
	b.add(statsMessage(2, "e2"))
	b.flush(context.Background())

	stats := counts.snapshot()
	assert.Equal(t, int64(1), stats.Applied)
	assert.Equal(t, int64(1), stats.Skipped)
}

func TestEventFilterForgetsOldest(t *testing.T) {
	f := newEventFilter(2)
	f.remember("a")
	f.remember("b")
	f.remember("b")
	assert.True(t, f.seen("a"))

	f.remember("c")
	assert.False(t, f.seen("a"))
	assert.True(t, f.seen("b"))
	assert.True(t, f.seen("c"))
	assert.False(t, f.seen(""))
}
