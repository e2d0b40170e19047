package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
)

// GetRiskPolicy shows the policy snapshot currently used for scoring.
func (s *Server) GetRiskPolicy(c *gin.Context) {
	if s.policy == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	policy := s.policy.Get()

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"policy":                        policy,
		"transaction_ceiling_formatted": payoutdomain.FormatMinor(policy.TransactionCeiling),
		"daily_cap_formatted":           payoutdomain.FormatMinor(policy.DailyCap),
	}})
}
