package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderOperator names the human behind an admin key for attribution only;
// permissions always come from the key's role.
const HeaderOperator = "X-Operator"

type ActorType string

const (
	ActorAPIKey   ActorType = "api_key"
	ActorOperator ActorType = "operator"
	ActorSystem   ActorType = "system"
)

type Actor struct {
	Type   ActorType
	ID     string
	Scopes []string
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.subject(), strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil || c.Request == nil {
		return Actor{}, false
	}

	ctx := c.Request.Context()
	authType, _ := ctx.Value(contextAuthTypeKey).(string)
	if strings.TrimSpace(authType) != string(ActorAPIKey) {
		return Actor{}, false
	}
	keyID, ok := apiKeyIDFromContext(ctx)
	if !ok {
		return Actor{}, false
	}
	return Actor{
		Type:   ActorAPIKey,
		ID:     keyID,
		Scopes: apiKeyScopesFromContext(ctx),
	}, true
}

// reviewActor is recorded as reviewed_by and on transitions.
func (s *Server) reviewActor(c *gin.Context) (string, bool) {
	actor, ok := s.actorFromContext(c)
	if !ok {
		return "", false
	}
	if operator := strings.TrimSpace(c.GetHeader(HeaderOperator)); operator != "" {
		return Actor{Type: ActorOperator, ID: operator}.subject(), true
	}
	return actor.subject(), true
}

func (a Actor) subject() string {
	switch a.Type {
	case ActorAPIKey:
		return fmt.Sprintf("api_key:%s", a.ID)
	case ActorOperator:
		return fmt.Sprintf("operator:%s", a.ID)
	case ActorSystem:
		return "system"
	default:
		return ""
	}
}
