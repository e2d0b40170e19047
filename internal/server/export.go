package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payoutd/internal/export"
)

type exportPayoutsQuery struct {
	Status string `form:"status"`
	Method string `form:"method"`
	From   string `form:"from"`
	To     string `form:"to"`
	Label  string `form:"label"`
}

func (s *Server) ExportPayouts(c *gin.Context) {
	var query exportPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	file, err := s.exportSvc.Ledger(c.Request.Context(), export.LedgerRequest{
		Status: strings.TrimSpace(query.Status),
		Method: strings.TrimSpace(query.Method),
		From:   from,
		To:     to,
		Label:  strings.TrimSpace(query.Label),
		Actor:  strings.TrimSpace(c.GetHeader(HeaderOperator)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeFile(c, file)
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	file, err := s.exportSvc.Receipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeFile(c, file)
}

func writeFile(c *gin.Context, file export.File) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
