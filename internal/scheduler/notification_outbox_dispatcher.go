package scheduler

import (
	"context"
	"time"

	"reportflow_backend/internal/notification/outbox"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultDispatchInterval = 15 * time.Second
	dispatchBatchSize       = 50
)

// NotificationOutboxDispatcher moves due outbox records onto the task queue.
type NotificationOutboxDispatcher struct {
	client   *asynq.Client
	repo     *outbox.Repository
	interval time.Duration
	log      *logger.Logger
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.GetOutboxInterval()
	if interval <= 0 {
		interval = defaultDispatchInterval
	}

	return &NotificationOutboxDispatcher{
		client:   asynq.NewClient(opt),
		repo:     outbox.New(pool),
		interval: interval,
		log:      log,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := d.repo.ClaimDue(ctx, dispatchBatchSize)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, rec := range records {
			d.enqueue(ctx, rec)
		}
		d.log.Info("outbox records dispatched", "count", len(records))
	}
}

// enqueue pushes one claimed record onto the queue; on failure the record is
// flipped back to pending so the next tick retries it.
func (d *NotificationOutboxDispatcher) enqueue(ctx context.Context, rec outbox.Record) {
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
		OutboxID: rec.ID.String(),
		UserID:   rec.UserID.String(),
	})
	if err != nil {
		msg := err.Error()
		_ = d.repo.MarkPending(ctx, rec.ID, &msg)
		return
	}

	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(defaultQueue)); err != nil {
		msg := err.Error()
		_ = d.repo.MarkPending(ctx, rec.ID, &msg)
	}
}
