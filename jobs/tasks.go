package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsSync re-syncs the permission registry into storage.
	TaskPermissionsSync = "permissions:sync"
	// TaskPermissionsPurgeExpired deletes expired user role assignments.
	TaskPermissionsPurgeExpired = "permissions:purge_expired"
)

// NewPermissionsSyncTask constructs the registry sync task.
func NewPermissionsSyncTask() *asynq.Task {
	return asynq.NewTask(TaskPermissionsSync, nil)
}

// NewPermissionsPurgeExpiredTask constructs the expired-assignment purge task.
func NewPermissionsPurgeExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskPermissionsPurgeExpired, nil)
}
