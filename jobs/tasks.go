package jobs

import (
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vesper-social/vesper/internal/audit"
)

// QueueAudit carries deferred audit writes, the only background workload.
const QueueAudit = "audit"

// NewServer builds the asynq server draining the job queues.
func NewServer(redisAddr string, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{QueueAudit: 1},
		},
	)
}

// NewMux registers all task handlers.
func NewMux(auditRepo audit.Inserter, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(audit.TaskTypeRecord, audit.NewRecordTaskHandler(auditRepo, logger))
	return mux
}
