package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskTypeRecord is the asynq task type carrying a rendered audit entry.
const TaskTypeRecord = "audit:record"

// Inserter persists rendered entries.
type Inserter interface {
	Insert(ctx context.Context, entry Entry) error
}

// Enqueuer defers entries onto the background queue. *asynq.Client satisfies
// it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Recorder writes audit entries. With an enqueuer configured the write is
// fire-and-forget through asynq so the access-control path never waits on
// the audit store; the entry is fully rendered first, so the worker persists
// exactly what was decided. Without an enqueuer entries are inserted
// synchronously.
type Recorder struct {
	repo    Inserter
	queue   Enqueuer
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRecorder constructs a Recorder. Queue may be nil.
func NewRecorder(repo Inserter, queue Enqueuer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, queue: queue, logger: logger, nowFunc: time.Now}
}

// Record persists one entry. ID and timestamp are assigned here, at decision
// time, never by the worker.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.nowFunc().UTC()
	}
	if entry.Type == "" {
		entry.Type = TypeAccessDecision
	}

	if r.queue == nil {
		return r.repo.Insert(ctx, entry)
	}

	task, err := NewRecordTask(entry)
	if err != nil {
		return fmt.Errorf("audit: render task: %w", err)
	}
	if _, err := r.queue.EnqueueContext(ctx, task, asynq.Queue("audit"), asynq.MaxRetry(5)); err != nil {
		// Queue trouble must not drop the record: fall back to a direct
		// insert so every gated decision keeps exactly one audit row.
		r.logger.Warn("audit enqueue failed, inserting directly", slog.Any("error", err))
		return r.repo.Insert(ctx, entry)
	}
	return nil
}

// NewRecordTask wraps a rendered entry into an asynq task.
func NewRecordTask(entry Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, payload), nil
}

// NewRecordTaskHandler returns the worker-side handler persisting deferred
// entries. Malformed payloads are dropped rather than retried.
func NewRecordTaskHandler(repo Inserter, logger *slog.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry Entry
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			logger.Error("audit task with malformed payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		return repo.Insert(ctx, entry)
	}
}
