package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/civicpulse/civicpulse/internal/permissions"
)

type enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler hands permission maintenance work to the worker queue.
type Scheduler struct {
	client enqueuer
}

// NewScheduler constructs a Scheduler over the queue client.
func NewScheduler(client *Client) *Scheduler {
	return &Scheduler{client: client}
}

// SchedulePurgeExpired enqueues an expired-assignment purge.
func (s *Scheduler) SchedulePurgeExpired(ctx context.Context) error {
	_, err := s.client.Enqueue(ctx, NewPermissionsPurgeExpiredTask())
	return err
}

// PermissionsSyncJob re-runs the registry sync so newly registered routes
// gain permission rows without a redeploy-time migration. The sync is
// idempotent, so overlapping runs are harmless.
type PermissionsSyncJob struct {
	service *permissions.Service
	logger  *slog.Logger
}

// NewPermissionsSyncJob constructs the sync job.
func NewPermissionsSyncJob(service *permissions.Service, logger *slog.Logger) *PermissionsSyncJob {
	return &PermissionsSyncJob{service: service, logger: logger}
}

// Handle processes TaskPermissionsSync tasks.
func (j *PermissionsSyncJob) Handle(ctx context.Context, _ *asynq.Task) error {
	created, err := j.service.SyncFromRegistry(ctx)
	if err != nil {
		j.logger.Error("permissions sync job", slog.Any("error", err))
		return err
	}
	j.logger.Info("permissions sync job complete", slog.Int("created", created))
	return nil
}

// PermissionsPurgeJob removes role assignments past their expiry. Expired
// assignments are already invisible to permission checks; the purge keeps
// the table from accumulating dead rows.
type PermissionsPurgeJob struct {
	service *permissions.Service
	logger  *slog.Logger
}

// NewPermissionsPurgeJob constructs the purge job.
func NewPermissionsPurgeJob(service *permissions.Service, logger *slog.Logger) *PermissionsPurgeJob {
	return &PermissionsPurgeJob{service: service, logger: logger}
}

// Handle processes TaskPermissionsPurgeExpired tasks.
func (j *PermissionsPurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	purged, err := j.service.PurgeExpiredAssignments(ctx)
	if err != nil {
		j.logger.Error("permissions purge job", slog.Any("error", err))
		return err
	}
	if purged > 0 {
		j.logger.Info("expired role assignments purged", slog.Int64("count", purged))
	}
	return nil
}
