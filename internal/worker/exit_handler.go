package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/service"
	"sketch-lobby/internal/tasks"
)

// SessionExiter is the coordinator operation run for a lost connection.
type SessionExiter interface {
	ExitBySession(ctx context.Context, sessionID string) (*service.ExitResult, error)
}

// ExitBySessionHandler runs the regular exit path for a connection that
// went away.
type ExitBySessionHandler struct {
	exiter SessionExiter
}

func NewExitBySessionHandler(exiter SessionExiter) *ExitBySessionHandler {
	if exiter == nil {
		panic("SessionExiter cannot be nil for ExitBySessionHandler")
	}
	return &ExitBySessionHandler{exiter: exiter}
}

// ProcessTask implements asynq.Handler.
func (h *ExitBySessionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID(t),
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.ExitBySessionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SessionID == "" {
		logCtx.WithError(err).Error("Malformed exit task payload")
		return fmt.Errorf("malformed exit payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"session_id": payload.SessionID, "room_id": payload.RoomID})

	result, err := h.exiter.ExitBySession(ctx, payload.SessionID)
	switch {
	case err == nil:
		logCtx.WithFields(logrus.Fields{
			"identity_id":  result.Departed.ID,
			"room_deleted": result.RoomDeleted,
		}).Info("Connection-loss exit completed")
		return nil
	case errors.Is(err, service.ErrMembershipNotFound):
		// already left explicitly, or the connection was rebound
		logCtx.Debug("No membership bound to session, nothing to do")
		return nil
	case errors.Is(err, service.ErrHostResolutionInconsistent):
		// the exit itself is committed; retrying would not help
		logCtx.WithError(err).Error("Exit committed but room left without a host")
		return nil
	default:
		logCtx.WithError(err).Warn("Connection-loss exit failed, will retry")
		return err
	}
}
