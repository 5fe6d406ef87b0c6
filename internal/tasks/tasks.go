package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeRoomExitBySession runs the exit for a realtime connection that went away.
	TypeRoomExitBySession = "room:exit_by_session"
	// TypeFlaggedRoomAudit reports rooms left without a resolvable host.
	TypeFlaggedRoomAudit = "room:flagged_audit"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ExitBySessionPayload identifies the lost connection.
type ExitBySessionPayload struct {
	SessionID string `json:"session_id"`
	RoomID    uint   `json:"room_id"`
}

// NewExitBySessionTask builds the connection-loss exit task. Departures sit
// on the critical queue so host handover is not delayed behind audits.
func NewExitBySessionTask(sessionID string, roomID uint) (*asynq.Task, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(ExitBySessionPayload{SessionID: sessionID, RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomExitBySession, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewFlaggedRoomAuditTask builds the periodic audit task.
func NewFlaggedRoomAuditTask() *asynq.Task {
	return asynq.NewTask(TypeFlaggedRoomAudit, nil, asynq.Queue(QueueLow), asynq.MaxRetry(0))
}

// DepartureQueue enqueues connection-loss exits on asynq.
type DepartureQueue struct {
	client *asynq.Client
}

func NewDepartureQueue(client *asynq.Client) *DepartureQueue {
	if client == nil {
		panic("asynq client cannot be nil for DepartureQueue")
	}
	return &DepartureQueue{client: client}
}

// SessionLost schedules the exit for sessionID.
func (q *DepartureQueue) SessionLost(ctx context.Context, sessionID string, roomID uint) error {
	task, err := NewExitBySessionTask(sessionID, roomID)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeRoomExitBySession, err)
	}
	return nil
}
