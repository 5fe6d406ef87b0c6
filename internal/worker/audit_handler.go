package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

// FlaggedRoomLister returns rooms that need an operator and clears out
// memberships whose identity is gone.
type FlaggedRoomLister interface {
	SweepUnresolvable(ctx context.Context) ([]service.RepairResult, error)
	FlaggedRooms(ctx context.Context) ([]domain.Room, error)
}

// FlaggedRoomAuditHandler evicts memberships that no longer resolve, then
// keeps reporting host-less rooms until repaired.
type FlaggedRoomAuditHandler struct {
	rooms FlaggedRoomLister
}

func NewFlaggedRoomAuditHandler(rooms FlaggedRoomLister) *FlaggedRoomAuditHandler {
	if rooms == nil {
		panic("FlaggedRoomLister cannot be nil for FlaggedRoomAuditHandler")
	}
	return &FlaggedRoomAuditHandler{rooms: rooms}
}

// ProcessTask implements asynq.Handler.
func (h *FlaggedRoomAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithFields(logrus.Fields{"task_id": taskID(t), "task_type": t.Type()})

	swept, err := h.rooms.SweepUnresolvable(ctx)
	if err != nil {
		// still report what is flagged
		logCtx.WithError(err).Error("Unresolvable membership sweep failed")
	}
	for _, r := range swept {
		logCtx.WithFields(logrus.Fields{
			"room_id":      r.Room.ID,
			"evicted":      len(r.Evicted),
			"room_deleted": r.RoomDeleted,
		}).Warn("Evicted memberships whose identity expired")
	}

	flagged, err := h.rooms.FlaggedRooms(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load flagged rooms")
		return err
	}
	if len(flagged) == 0 {
		logCtx.Debug("No flagged rooms")
		return nil
	}

	for _, room := range flagged {
		logCtx.WithFields(logrus.Fields{
			"room_id":    room.ID,
			"title":      room.Title,
			"flagged_at": room.UpdatedAt,
		}).Error("Room has no resolvable host, run roomctl repair")
	}
	logCtx.WithField("count", len(flagged)).Warn("Flagged room audit finished")
	return nil
}
