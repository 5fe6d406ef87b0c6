package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

const identityKey = "identity"

// IdentityResolver is the part of service.IdentityResolver the middleware needs.
type IdentityResolver interface {
	Resolve(ctx context.Context, creds service.Credentials) (domain.Identity, error)
}

// Identity resolves the caller from the Authorization bearer token or the
// guest header and stores it in the gin context. Requests without a usable
// credential are rejected with 401.
func Identity(resolver IdentityResolver) gin.HandlerFunc {
	if resolver == nil {
		panic("IdentityResolver cannot be nil for Identity middleware")
	}

	return func(c *gin.Context) {
		creds := service.Credentials{
			BearerToken: bearerToken(c.GetHeader("Authorization")),
			GuestMarker: c.GetHeader(service.GuestHeader),
		}

		identity, err := resolver.Resolve(c.Request.Context(), creds)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, service.ErrInternalServer) {
				status = http.StatusInternalServerError
			}
			logrus.WithError(err).WithField("path", c.FullPath()).Warn("Identity middleware: request rejected")
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": service.Code(err)})
			return
		}

		c.Set(identityKey, identity)
		logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "kind": identity.Kind}).Debug("Identity middleware: caller resolved")
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Identity.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

// bearerToken extracts the token from "Bearer <token>"; anything else is
// treated as absent.
func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
