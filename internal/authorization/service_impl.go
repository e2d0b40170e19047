package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayout   = "payout"
	ObjectRefund   = "refund"
	ObjectAuditLog = "audit"
	ObjectAPIKey   = "api_key"
	ObjectPolicy   = "risk_policy"
)

const (
	ActionRequest = "request"
	ActionView    = "view"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionRetry   = "retry"
	ActionExport  = "export"
	ActionCreate  = "create"
	ActionRevoke  = "revoke"
)

const (
	RoleSystem       = "role:system"
	RolePayoutAdmin  = "role:payout_admin"
	RolePayoutViewer = "role:payout_viewer"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newSeededEnforcer(adapter)
}

// newSeededEnforcer keeps policies in memory only when adapter is nil.
func newSeededEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.SyncedEnforcer
	if adapter == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, *string, error) {
	switch {
	case actor == "system":
		return RoleSystem, string(auditdomain.ActorTypeSystem), nil, nil
	case actor == "scheduler":
		return RoleSystem, string(auditdomain.ActorTypeScheduler), nil, nil
	case strings.HasPrefix(actor, "operator:"):
		name := strings.TrimSpace(strings.TrimPrefix(actor, "operator:"))
		if name == "" {
			return "", string(auditdomain.ActorTypeOperator), nil, ErrInvalidActor
		}
		return RolePayoutAdmin, string(auditdomain.ActorTypeOperator), &name, nil
	case strings.HasPrefix(actor, "api_key:"):
		keyID := strings.TrimSpace(strings.TrimPrefix(actor, "api_key:"))
		if keyID == "" {
			return "", string(auditdomain.ActorTypeAPIKey), nil, ErrInvalidActor
		}
		role, err := s.roleForAPIKey(ctx, keyID)
		if err != nil {
			return "", string(auditdomain.ActorTypeAPIKey), &keyID, err
		}
		return fmt.Sprintf("role:%s", strings.ToLower(role)), string(auditdomain.ActorTypeAPIKey), &keyID, nil
	}
	return "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForAPIKey(ctx context.Context, keyID string) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM api_keys
		 WHERE key_id = ? AND is_active = ?
		 LIMIT 1`,
		keyID,
		true,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	targetID := object + ":" + action
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("audit authorization denial failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{RolePayoutViewer, ObjectPayout, ActionView},

		// Admin permissions
		{RolePayoutAdmin, ObjectPayout, ActionView},
		{RolePayoutAdmin, ObjectPayout, ActionApprove},
		{RolePayoutAdmin, ObjectPayout, ActionReject},
		{RolePayoutAdmin, ObjectPayout, ActionRetry},
		{RolePayoutAdmin, ObjectPayout, ActionExport},
		{RolePayoutAdmin, ObjectAuditLog, ActionView},
		{RolePayoutAdmin, ObjectAPIKey, ActionView},
		{RolePayoutAdmin, ObjectAPIKey, ActionCreate},
		{RolePayoutAdmin, ObjectAPIKey, ActionRevoke},
		{RolePayoutAdmin, ObjectPolicy, ActionView},

		// System permissions (booking platform triggers and the sweep)
		{RoleSystem, ObjectPayout, ActionRequest},
		{RoleSystem, ObjectRefund, ActionRequest},
		{RoleSystem, ObjectPayout, ActionRetry},
		{RoleSystem, ObjectPayout, ActionView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
