package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-webinar/streamhub/pkg/queue"
)

// JobSource is the queue the dispatcher drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Publisher fans a notification out to every hub instance.
type Publisher interface {
	NotifyUser(ctx context.Context, userID string, payload any) error
	NotifyAllStreamStatusSubscribers(ctx context.Context, payload any) error
	NotifyAllNotificationSubscribers(ctx context.Context, payload any) error
}

// NotificationDispatcher turns queued notification jobs into published notifications.
type NotificationDispatcher struct {
	jobs      JobSource
	publisher Publisher
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewNotificationDispatcher creates a dispatcher.
func NewNotificationDispatcher(jobs JobSource, publisher Publisher, clock clockwork.Clock, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NotificationDispatcher{jobs: jobs, publisher: publisher, clock: clock, logger: logger}
}

// Process publishes one job.
func (d *NotificationDispatcher) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(payload.Event) == 0 {
		return fmt.Errorf("job %s has no event", job.ID)
	}

	switch job.Type {
	case queue.JobNotifyUser:
		if payload.UserID == "" {
			return fmt.Errorf("job %s has no user_id", job.ID)
		}
		return d.publisher.NotifyUser(ctx, payload.UserID, payload.Event)
	case queue.JobNotifyStreamStatus:
		return d.publisher.NotifyAllStreamStatusSubscribers(ctx, payload.Event)
	case queue.JobNotifyAllUsers:
		return d.publisher.NotifyAllNotificationSubscribers(ctx, payload.Event)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run dequeues and processes jobs until ctx is done. Failed jobs are retried with backoff.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			d.logger.Info("notification dispatcher stopping")
			return
		}

		job, err := d.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Warn("dequeue error", zap.Error(err))
			d.backoff(ctx)
			continue
		}
		if job == nil {
			continue
		}

		d.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := d.Process(ctx, job); err != nil {
			d.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := d.jobs.Retry(ctx, job); reErr != nil {
				d.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			d.backoff(ctx)
		}
	}
}

func (d *NotificationDispatcher) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-d.clock.After(queue.RetryBackoff):
	}
}
