package worker

import (
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/tasks"
)

// Scheduler enqueues the periodic flagged-room audit.
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewScheduler registers the audit under the given cron spec.
func NewScheduler(redisOpt asynq.RedisClientOpt, auditSchedule string, logger *logrus.Logger) (*Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	log := logger.WithField("component", "scheduler")

	entryID, err := scheduler.Register(auditSchedule, tasks.NewFlaggedRoomAuditTask())
	if err != nil {
		return nil, err
	}
	log.Infof("Flagged room audit registered with schedule '%s' (EntryID: %s)", auditSchedule, entryID)
	return &Scheduler{scheduler: scheduler, log: log}, nil
}

// Start runs the scheduler; call it in its own goroutine.
func (s *Scheduler) Start() {
	s.log.Info("Asynq scheduler starting...")
	if err := s.scheduler.Run(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
	}
	s.log.Info("Asynq scheduler stopped.")
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
