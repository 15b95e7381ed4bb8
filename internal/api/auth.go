package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is the verified user identity attached to each request by the
// authentication collaborator
type Identity struct {
	UserID uuid.UUID
}

// IdentityProvider is the boundary to the external authentication component.
// Session issuance and credential verification live outside this service;
// this interface only consumes its result.
type IdentityProvider interface {
	Authenticate(c *gin.Context) (*Identity, error)
}

// HeaderIdentityProvider trusts the X-User-ID header set by an
// authenticating gateway in front of this service. The service must not be
// exposed without such a gateway.
type HeaderIdentityProvider struct{}

// Authenticate extracts the verified user id from the gateway header
func (HeaderIdentityProvider) Authenticate(c *gin.Context) (*Identity, error) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return nil, fmt.Errorf("missing identity header")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed identity header")
	}
	return &Identity{UserID: userID}, nil
}

const identityKey = "identity"

// authMiddleware resolves the request identity or rejects with 401
func authMiddleware(provider IdentityProvider, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := provider.Authenticate(c)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// identityFrom returns the identity resolved by authMiddleware
func identityFrom(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}
