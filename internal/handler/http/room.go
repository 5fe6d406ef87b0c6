package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/middleware"
	"sketch-lobby/internal/service"
)

// RoomHandler serves the room directory and membership operations.
type RoomHandler struct {
	directory   *service.RoomDirectory
	coordinator *service.RoomCoordinator
	sessions    *service.SessionCorrelator
}

func NewRoomHandler(directory *service.RoomDirectory, coordinator *service.RoomCoordinator, sessions *service.SessionCorrelator) *RoomHandler {
	return &RoomHandler{directory: directory, coordinator: coordinator, sessions: sessions}
}

type ListRoomsRequest struct {
	Page int `form:"page,default=0"`
	Size int `form:"size,default=10"`
}

type RoomResponse struct {
	RoomID       uint      `json:"roomId"`
	Title        string    `json:"title"`
	HostID       uint64    `json:"hostId"`
	HostNick     string    `json:"hostNick"`
	Status       string    `json:"status"`
	Occupants    int64     `json:"occupants"`
	MaxOccupants int       `json:"maxOccupants"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PageInfo struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	LastPage   int   `json:"lastPage"`
	TotalRooms int64 `json:"totalRooms"`
}

type ListRoomsResponse struct {
	Rooms    []RoomResponse `json:"rooms"`
	PageInfo PageInfo       `json:"pageInfo"`
}

// ListRooms returns one page of rooms with live occupant counts.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	var req ListRoomsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid input: page and size must be integers")
		return
	}

	page, err := h.directory.List(c.Request.Context(), service.ListRoomsQuery{Page: req.Page, Size: req.Size})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, ListRoomsResponse{
		Rooms: lo.Map(page.Rooms, func(r domain.RoomSummary, _ int) RoomResponse {
			return RoomResponse{
				RoomID:       r.ID,
				Title:        r.Title,
				HostID:       r.HostID,
				HostNick:     r.HostNick,
				Status:       string(r.Status),
				Occupants:    r.Occupants,
				MaxOccupants: domain.MaxOccupants,
				CreatedAt:    r.CreatedAt,
				UpdatedAt:    r.UpdatedAt,
			}
		}),
		PageInfo: PageInfo{
			Page:       page.Page,
			Size:       page.Size,
			LastPage:   page.TotalPages,
			TotalRooms: page.TotalRooms,
		},
	})
}

type CreateRoomRequest struct {
	Title string `json:"title" binding:"required"`
}

type CreateRoomResponse struct {
	RoomTitle string `json:"roomTitle"`
	RoomID    uint   `json:"roomId"`
}

// CreateRoom opens a room with the caller as host.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid input: title is required")
		return
	}

	room, err := h.coordinator.CreateRoom(c.Request.Context(), identity, req.Title)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room_id": room.ID, "identity_id": identity.ID}).Info("Handler.CreateRoom: room created")
	SuccessResponse(c, http.StatusOK, CreateRoomResponse{RoomTitle: room.Title, RoomID: room.ID})
}

// EnterRoom joins the caller to a room.
func (h *RoomHandler) EnterRoom(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.coordinator.EnterRoom(c.Request.Context(), identity, roomID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Entered room", "roomId": roomID})
}

// ExitRoom removes the caller from a room, handing over the host if needed.
func (h *RoomHandler) ExitRoom(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	result, err := h.coordinator.ExitByIdentity(c.Request.Context(), identity, roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// StartGame moves the room to playing. Host only.
func (h *RoomHandler) StartGame(c *gin.Context) {
	h.setStatus(c, domain.RoomPlaying)
}

// FinishGame moves the room back to waiting. Host only.
func (h *RoomHandler) FinishGame(c *gin.Context) {
	h.setStatus(c, domain.RoomWaiting)
}

func (h *RoomHandler) setStatus(c *gin.Context, status domain.RoomStatus) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.coordinator.SetStatus(c.Request.Context(), identity, roomID, status); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"roomId": roomID, "status": status})
}

// SocketToken issues the short-lived credential for the realtime channel.
func (h *RoomHandler) SocketToken(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	token, err := h.sessions.IssueSocketToken(c.Request.Context(), identity, roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"token": token})
}

func callerIdentity(c *gin.Context) (domain.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		logrus.WithField("path", c.FullPath()).Error("Handler: identity missing from context, middleware not installed?")
		HandleServiceError(c, service.ErrUnauthenticated)
		return domain.Identity{}, false
	}
	return identity, true
}

func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("roomId"), 10, 64)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid room ID")
		return 0, false
	}
	return uint(id), true
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
