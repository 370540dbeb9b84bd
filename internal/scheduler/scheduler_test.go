package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"reportflow_backend/internal/events"
	"reportflow_backend/internal/notification/outbox"
	"reportflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	addr     string
	password string
	interval time.Duration
}

func (c testSchedulerConfig) GetRedisAddr() string             { return c.addr }
func (c testSchedulerConfig) GetRedisPassword() string         { return c.password }
func (c testSchedulerConfig) GetOutboxInterval() time.Duration { return c.interval }

type recordingBus struct {
	sync  []events.Event
	async []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.async = append(b.async, e)
}

func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.sync = append(b.sync, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func TestRedisClientOptPlainAddr(t *testing.T) {
	opt, err := redisClientOpt(testSchedulerConfig{addr: "localhost:6379", password: "secret"})
	if err != nil {
		t.Fatalf("redisClientOpt error: %v", err)
	}
	if opt.Addr != "localhost:6379" {
		t.Fatalf("addr = %q", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Fatalf("password = %q", opt.Password)
	}
}

func TestRedisClientOptURL(t *testing.T) {
	opt, err := redisClientOpt(testSchedulerConfig{addr: "redis://:urlpass@redis.internal:6380/2"})
	if err != nil {
		t.Fatalf("redisClientOpt error: %v", err)
	}
	if opt.Addr != "redis.internal:6380" {
		t.Fatalf("addr = %q", opt.Addr)
	}
	if opt.Password != "urlpass" {
		t.Fatalf("password = %q", opt.Password)
	}
	if opt.DB != 2 {
		t.Fatalf("db = %d", opt.DB)
	}
}

func TestRedisClientOptBadURL(t *testing.T) {
	if _, err := redisClientOpt(testSchedulerConfig{addr: "redis://[broken"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWorkerPublishesOutboxDueEvent(t *testing.T) {
	srv := miniredis.RunT(t)
	bus := &recordingBus{}

	w, err := NewWorker(testSchedulerConfig{addr: srv.Addr()}, bus, logger.New("test"))
	if err != nil {
		t.Fatalf("NewWorker error: %v", err)
	}

	outboxID := uuid.New()
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
		OutboxID: outboxID.String(),
		UserID:   uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("NewNotificationOutboxDueTask error: %v", err)
	}

	if err := w.handleNotificationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf("handleNotificationOutboxDue error: %v", err)
	}
	if len(bus.sync) != 1 {
		t.Fatalf("expected 1 sync event, got %d", len(bus.sync))
	}
	due, ok := bus.sync[0].(events.NotificationOutboxDue)
	if !ok {
		t.Fatalf("event type %T", bus.sync[0])
	}
	if due.OutboxID != outboxID {
		t.Fatalf("outboxId = %s, want %s", due.OutboxID, outboxID)
	}
}

func TestWorkerRejectsMalformedPayload(t *testing.T) {
	srv := miniredis.RunT(t)

	w, err := NewWorker(testSchedulerConfig{addr: srv.Addr()}, &recordingBus{}, logger.New("test"))
	if err != nil {
		t.Fatalf("NewWorker error: %v", err)
	}

	task := asynq.NewTask(TaskNotificationOutboxDue, []byte("{not json"))
	if err := w.handleNotificationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected payload error")
	}

	task = asynq.NewTask(TaskNotificationOutboxDue, []byte(`{"outboxId":"not-a-uuid"}`))
	if err := w.handleNotificationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected uuid parse error")
	}
}

func TestDispatcherEnqueuesClaimedRecord(t *testing.T) {
	srv := miniredis.RunT(t)

	d, err := NewNotificationOutboxDispatcher(testSchedulerConfig{addr: srv.Addr()}, nil, logger.New("test"))
	if err != nil {
		t.Fatalf("NewNotificationOutboxDispatcher error: %v", err)
	}
	defer d.Close()

	d.enqueue(context.Background(), outbox.Record{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   "follow_up_reminder",
		RunAt:  time.Now(),
	})

	found := false
	for _, key := range srv.Keys() {
		if strings.HasPrefix(key, "asynq:") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no asynq keys written to redis, keys = %v", srv.Keys())
	}
}
