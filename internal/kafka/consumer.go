package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
)

// EventApplier reconciles one normalized billing event
type EventApplier interface {
	Apply(ctx context.Context, ev domain.BillingEvent) (*domain.ReconcileOutcome, error)
}

var (
	// ErrInvalidEvent is returned for messages that decode but cannot be applied
	ErrInvalidEvent = errors.New("invalid billing event")
	// ErrStartTimeout is returned when no group session is set up in time
	ErrStartTimeout = errors.New("timed out joining consumer group")
)

// Consumer feeds billing events from Kafka into the reconciler. Messages are
// keyed by user so one user's events stay ordered within a partition.
type Consumer struct {
	config        *config.KafkaConfig
	applier       EventApplier
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	backOff       func() backoff.BackOff
}

// NewConsumer creates a consumer group member for the billing topic
func NewConsumer(cfg *config.KafkaConfig, applier EventApplier, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		applier:       applier,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start joins the group and blocks until the first session is set up or the
// startup timeout passes. On timeout the group is closed in the background.
func (c *Consumer) Start() error {
	c.logger.Info("starting billing event consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	ready := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sessionReady := ready
		for {
			handler := &consumerGroupHandler{consumer: c, ready: sessionReady}
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			select {
			case <-sessionReady:
				sessionReady = make(chan struct{})
			default:
			}
		}
	}()

	timer := time.NewTimer(c.config.StartupTimeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.C:
		go func() {
			if err := c.Stop(); err != nil {
				c.logger.Warn("failed to close consumer group", "error", err)
			}
		}()
		return fmt.Errorf("%w after %s", ErrStartTimeout, c.config.StartupTimeout)
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	c.logger.Info("billing event consumer ready")

	c.wg.Add(1)
	go func() {
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
	}()

	return nil
}

// Stop leaves the group after the current batch is applied
func (c *Consumer) Stop() error {
	c.logger.Info("stopping billing event consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// DecodeEvent parses and checks one message value
func DecodeEvent(data []byte) (domain.BillingEvent, error) {
	var ev domain.BillingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.Type == "" {
		return ev, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	if ev.UserID == "" && ev.CustomerID == "" {
		return ev, fmt.Errorf("%w: missing user and customer", ErrInvalidEvent)
	}
	return ev, nil
}

// pendingEvent is a decoded message waiting to be applied
type pendingEvent struct {
	event  domain.BillingEvent
	offset int64
}

type batchResult struct {
	applied  int
	rejected int
}

// applyBatch applies events oldest first and stops at the first store failure.
// It returns the events not yet applied.
func (c *Consumer) applyBatch(ctx context.Context, batch []pendingEvent) ([]pendingEvent, batchResult, error) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].event.OccurredAt.Before(batch[j].event.OccurredAt)
	})

	var res batchResult
	for i, p := range batch {
		out, err := c.applier.Apply(ctx, p.event)
		if err != nil {
			return batch[i:], res, fmt.Errorf("applying event %s: %w", p.event.ID, err)
		}
		if out.Applied {
			res.applied++
		} else {
			res.rejected++
		}
	}
	return nil, res, nil
}

// deliver applies a batch and retries the unapplied remainder with backoff
// until it goes through or ctx ends. It returns the events still unapplied.
func (c *Consumer) deliver(ctx context.Context, batch []pendingEvent) []pendingEvent {
	retry := c.newBackOff()
	for {
		applyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		rest, res, err := c.applyBatch(applyCtx, batch)
		cancel()

		c.logger.Debug("processed billing batch",
			"batch_size", len(batch),
			"applied", res.applied,
			"rejected", res.rejected,
			"remaining", len(rest),
		)
		if err == nil {
			return nil
		}
		batch = rest

		wait := retry.NextBackOff()
		c.logger.Error("failed to apply billing batch", "error", err, "remaining", len(rest), "retry_in", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return batch
		case <-timer.C:
		}
	}
}

func (c *Consumer) newBackOff() backoff.BackOff {
	if c.backOff != nil {
		return c.backOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = c.config.RetryMaxWait
	b.MaxElapsedTime = 0
	return b
}

// lowestOffset is the first offset that must be consumed again
func lowestOffset(events []pendingEvent) int64 {
	lowest := events[0].offset
	for _, p := range events[1:] {
		if p.offset < lowest {
			lowest = p.offset
		}
	}
	return lowest
}

type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan struct{}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim collects events into batches bounded by size and time. The
// committed offset never passes an event that has not been applied.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	cfg := c.config
	batch := make([]pendingEvent, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage

	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		rest := c.deliver(session.Context(), batch)
		batch = batch[:0]
		if len(rest) > 0 {
			offset := lowestOffset(rest)
			session.MarkOffset(claim.Topic(), claim.Partition(), offset, "")
			c.logger.Warn("session ended with unapplied billing events",
				"remaining", len(rest),
				"resume_offset", offset,
				"partition", claim.Partition(),
			)
			return false
		}
		session.MarkMessage(last, "")
		return true
	}

	for {
		select {
		case <-session.Context().Done():
			flush()
			return nil

		case <-batchTimer.C:
			if !flush() {
				return nil
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			last = message

			ev, err := DecodeEvent(message.Value)
			if err != nil {
				c.logger.Warn("skipping billing message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				if len(batch) == 0 {
					session.MarkMessage(message, "")
				}
				continue
			}

			batch = append(batch, pendingEvent{event: ev, offset: message.Offset})
			if len(batch) >= cfg.BatchSize {
				if !flush() {
					return nil
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
