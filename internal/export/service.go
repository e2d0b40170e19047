package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"

	maxLedgerRows = 10000
)

var (
	ErrExportTooLarge     = errors.New("export_too_large")
	ErrReceiptUnavailable = payoutdomain.ErrReceiptUnavailable
)

type File struct {
	Name        string
	ContentType string
	Body        []byte
}

type LedgerRequest struct {
	Status string
	Method string
	From   *time.Time
	To     *time.Time
	Label  string
	Actor  string
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Admin payoutdomain.AdminService
	Audit auditdomain.Service `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	admin payoutdomain.AdminService
	audit auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:   p.Log.Named("export.service"),
		clock: p.Clock,
		admin: p.Admin,
		audit: p.Audit,
	}
}

// Ledger pages through the filtered ledger and renders it as xlsx.
func (s *Service) Ledger(ctx context.Context, req LedgerRequest) (File, error) {
	var rows []payoutdomain.Payout
	pageToken := ""
	for {
		page, err := s.admin.List(ctx, payoutdomain.ListRequest{
			Status:    req.Status,
			Method:    req.Method,
			From:      req.From,
			To:        req.To,
			PageToken: pageToken,
			PageSize:  pagination.MaxPageSize,
		})
		if err != nil {
			return File{}, err
		}
		rows = append(rows, page.Payouts...)
		if len(rows) > maxLedgerRows {
			return File{}, ErrExportTooLarge
		}
		if !page.HasMore || page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	var buf bytes.Buffer
	if err := WriteLedger(&buf, rows); err != nil {
		return File{}, err
	}

	name := Filename("payouts", req.Label, s.clock.Now(), "xlsx")
	s.auditExport(ctx, req, name, len(rows))
	return File{Name: name, ContentType: ContentTypeXLSX, Body: buf.Bytes()}, nil
}

// Receipt renders the PDF receipt of a completed payout.
func (s *Service) Receipt(ctx context.Context, id snowflake.ID) (File, error) {
	p, err := s.admin.Get(ctx, id)
	if err != nil {
		return File{}, err
	}
	body, err := RenderReceipt(p)
	if err != nil {
		return File{}, err
	}
	at := p.CreatedAt
	if p.ProcessedAt != nil {
		at = *p.ProcessedAt
	}
	return File{
		Name:        Filename("receipt", string(p.Method)+" "+p.ID.String(), at, "pdf"),
		ContentType: ContentTypePDF,
		Body:        body,
	}, nil
}

func (s *Service) auditExport(ctx context.Context, req LedgerRequest, name string, rows int) {
	if s.audit == nil {
		return
	}
	actorType := ""
	var actorID *string
	if actor := strings.TrimSpace(req.Actor); actor != "" {
		actorType = string(auditdomain.ActorTypeOperator)
		actorID = &actor
	}
	if err := s.audit.AuditLog(ctx, actorType, actorID, auditdomain.ActionPayoutExported, "payout_export", &name, map[string]any{
		"status": req.Status,
		"method": req.Method,
		"rows":   rows,
	}); err != nil {
		s.log.Warn("audit export failed", zap.String("file", name), zap.Error(err))
	}
}
