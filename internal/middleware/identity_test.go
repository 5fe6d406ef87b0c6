package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

type stubResolver struct {
	got      service.Credentials
	identity domain.Identity
	err      error
}

func (s *stubResolver) Resolve(_ context.Context, creds service.Credentials) (domain.Identity, error) {
	s.got = creds
	return s.identity, s.err
}

func serve(resolver IdentityResolver, headers map[string]string) (*httptest.ResponseRecorder, *domain.Identity) {
	gin.SetMode(gin.TestMode)
	var seen *domain.Identity
	r := gin.New()
	r.GET("/me", Identity(resolver), func(c *gin.Context) {
		if id, ok := IdentityFrom(c); ok {
			seen = &id
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestIdentity_StoresResolvedCaller(t *testing.T) {
	resolver := &stubResolver{identity: domain.Identity{ID: 3, Nickname: "ann", Kind: domain.KindMember}}

	w, seen := serve(resolver, map[string]string{"Authorization": "Bearer abc", service.GuestHeader: "marker"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", resolver.got.BearerToken)
	assert.Equal(t, "marker", resolver.got.GuestMarker)
	if assert.NotNil(t, seen) {
		assert.Equal(t, uint64(3), seen.ID)
	}
}

func TestIdentity_IgnoresNonBearerAuthorization(t *testing.T) {
	resolver := &stubResolver{err: service.ErrUnauthenticated}

	w, seen := serve(resolver, map[string]string{"Authorization": "Basic Zm9vOmJhcg=="})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, resolver.got.BearerToken)
	assert.Nil(t, seen)
}

func TestIdentity_InternalErrorIs500(t *testing.T) {
	resolver := &stubResolver{err: service.ErrInternalServer}

	w, _ := serve(resolver, map[string]string{service.GuestHeader: "marker"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok", bearerToken("Bearer tok"))
	assert.Equal(t, "tok", bearerToken("bearer tok"))
	assert.Empty(t, bearerToken("tok"))
	assert.Empty(t, bearerToken(""))
}
