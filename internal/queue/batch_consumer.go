package queue

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BatchHandler processes one batch of raw event payloads. It must not fail
// the batch: per-event problems are handled and logged inside the pipeline.
type BatchHandler func(ctx context.Context, events [][]byte)

// BatchConsumer collects messages from Kafka into batches and hands them to
// the pipeline, committing offsets only after the batch was processed.
type BatchConsumer struct {
	consumer      *Consumer
	handler       BatchHandler
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchConsumer creates a new batch consumer
func NewBatchConsumer(consumer *Consumer, handler BatchHandler, batchSize int, flushInterval time.Duration, logger *zap.Logger) *BatchConsumer {
	return &BatchConsumer{
		consumer:      consumer,
		handler:       handler,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and batching
func (bc *BatchConsumer) Start(ctx context.Context) {
	bc.wg.Add(1)
	go bc.run(ctx)
}

// Stop stops the batch consumer gracefully
func (bc *BatchConsumer) Stop() {
	close(bc.stopCh)
	bc.wg.Wait()
}

func (bc *BatchConsumer) run(ctx context.Context) {
	defer bc.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, bc.batchSize)
	go func() {
		for {
			msg, err := bc.consumer.Consume(ctx)
			if err != nil {
				select {
				case <-ctx.Done():
					close(msgChan)
					return
				case <-bc.stopCh:
					close(msgChan)
					return
				default:
					bc.logger.Warn("failed to fetch message", zap.Error(err))
					continue
				}
			}
			msgChan <- msg
		}
	}()

	for {
		select {
		case <-bc.stopCh:
			bc.flush(ctx, batch)
			return
		case <-ctx.Done():
			bc.flush(context.Background(), batch)
			return
		case msg, ok := <-msgChan:
			if !ok {
				bc.flush(ctx, batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= bc.batchSize {
				bc.flush(ctx, batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				bc.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (bc *BatchConsumer) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	events := make([][]byte, len(batch))
	for i, msg := range batch {
		events[i] = msg.Value
	}

	bc.handler(ctx, events)

	if err := bc.consumer.Commit(ctx, batch...); err != nil {
		// At-least-once: the batch will be redelivered, downstream
		// effects are idempotent.
		bc.logger.Warn("failed to commit batch", zap.Error(err), zap.Int("size", len(batch)))
	}
}
