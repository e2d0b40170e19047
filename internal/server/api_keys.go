package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
)

type createAPIKeyRequest struct {
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Scopes []string `json:"scopes"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if keys == nil {
		keys = []apikeydomain.Response{}
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

// CreateAPIKey returns the raw key once; only its hash is stored.
func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:   strings.TrimSpace(req.Name),
		Role:   strings.TrimSpace(req.Role),
		Scopes: req.Scopes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	if keyID == "" {
		AbortWithError(c, newValidationError("key_id", "invalid_key_id", "invalid key_id"))
		return
	}
	if current, ok := apiKeyIDFromContext(c.Request.Context()); ok && current == keyID {
		AbortWithError(c, newValidationError("key_id", "invalid_key_id", "a key cannot revoke itself"))
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"key_id": keyID, "revoked": true}})
}
