package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
)

// StatsHandler applies batches of stats events
type StatsHandler interface {
	ApplyStatsBatch(ctx context.Context, events []domain.StatsEvent) (int, error)
}

// Consumer consumes stats events from Kafka and applies them in batches
type Consumer struct {
	config        *config.KafkaConfig
	handler       StatsHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	filter        *eventFilter
	counts        counters
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler StatsHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group %s: %w", cfg.GroupID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		filter:        newEventFilter(recentEventIDs),
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start joins the consumer group and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
		"batch_size", c.config.BatchSize,
	)

	c.wg.Add(1)
	go c.consume()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go c.reportErrors()
	return nil
}

// consume rejoins the group after every rebalance until the consumer stops
func (c *Consumer) consume() {
	defer c.wg.Done()
	for {
		handler := &consumerGroupHandler{consumer: c, ready: c.ready}
		if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Error("error from consumer", "error", err)
		}
		if c.ctx.Err() != nil {
			return
		}
		c.ready = make(chan bool)
	}
}

func (c *Consumer) reportErrors() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.consumerGroup.Errors():
			if !ok {
				return
			}
			c.logger.Error("consumer group error", "error", err)
		}
	}
}

// Stats returns the running message counters
func (c *Consumer) Stats() ConsumerStats {
	return c.counts.snapshot()
}

// Stop leaves the group after the in-flight batches are flushed
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()

	stats := c.Stats()
	c.logger.Info("Kafka consumer stopped",
		"received", stats.Received,
		"applied", stats.Applied,
		"skipped", stats.Skipped,
		"malformed", stats.Malformed,
		"duplicates", stats.Duplicates,
		"dropped", stats.Dropped,
	)
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim flushes a partition's events when the batch fills up, when
// the batch timeout passes and when the claim ends
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	mark := func(msg *sarama.ConsumerMessage) { session.MarkMessage(msg, "") }
	batch := newStatsBatch(c.handler, c.config.BatchSize, c.filter, &c.counts, mark,
		c.logger.With("partition", claim.Partition()))

	ticker := time.NewTicker(c.config.BatchTimeout)
	defer ticker.Stop()

	// Flushing outlives the session context so a rebalance does not abort
	// a batch half way through.
	flushCtx := context.Background()

	for {
		select {
		case <-session.Context().Done():
			batch.flush(flushCtx)
			return nil

		case <-ticker.C:
			batch.flush(flushCtx)

		case msg, ok := <-claim.Messages():
			if !ok {
				batch.flush(flushCtx)
				return nil
			}
			if batch.add(msg) {
				batch.flush(flushCtx)
				ticker.Reset(c.config.BatchTimeout)
			}
		}
	}
}
