package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/service"
)

var statusByError = []struct {
	err    error
	status int
}{
	{service.ErrInvalidRequest, http.StatusBadRequest},
	{service.ErrUnauthenticated, http.StatusUnauthorized},
	{service.ErrInvalidAuthToken, http.StatusUnauthorized},
	{service.ErrUserNotFound, http.StatusUnauthorized},
	{service.ErrAuthenticationFailed, http.StatusUnauthorized},
	{service.ErrNotHost, http.StatusForbidden},
	{service.ErrRoomNotFound, http.StatusNotFound},
	{service.ErrMembershipNotFound, http.StatusNotFound},
	{service.ErrAlreadyInRoom, http.StatusConflict},
	{service.ErrRoomFull, http.StatusConflict},
	{service.ErrAlreadyPlaying, http.StatusConflict},
	{service.ErrRegistrationFailed, http.StatusConflict},
}

// HandleServiceError writes the response for an error returned by a service.
func HandleServiceError(c *gin.Context, err error) {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			ErrorResponse(c, m.status, service.Code(err), err.Error())
			return
		}
	}
	if errors.Is(err, service.ErrHostResolutionInconsistent) {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Room left without a resolvable host")
		ErrorResponse(c, http.StatusInternalServerError, service.Code(err), err.Error())
		return
	}
	logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
	ErrorResponse(c, http.StatusInternalServerError, service.Code(err), "An unexpected error occurred")
}
