package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/sirupsen/logrus"
)

// Actor is the already-authenticated caller of an engine operation.
type Actor struct {
	UserId     int
	UserName   string
	Role       string
	BusinessId string
}

type Action string

const (
	ActionSimulatePlan    Action = "simulate_plan"
	ActionCreateCredit    Action = "create_credit"
	ActionCancelCredit    Action = "cancel_credit"
	ActionRegisterPayment Action = "register_payment"
	ActionUpdateSchedule  Action = "update_schedule"
	ActionRecordMovement  Action = "record_movement"
	ActionViewCashFlow    Action = "view_cash_flow"
	ActionRunReconcile    Action = "run_reconcile"
	ActionRunOverdueSweep Action = "run_overdue_sweep"
)

// MembershipResolver answers which business an actor operates on.
// Privileged roles may target any business; everyone else is pinned to their own.
type MembershipResolver interface {
	ResolveBusiness(actor Actor, requestedBusinessId string) (string, error)
}

// Authorizer is the opaque permission check. The engine never branches on
// role names directly.
type Authorizer interface {
	CanPerform(actor Actor, action Action) error
}

// AuditSink records engine events on a side-channel. Failures must never
// propagate into the calling operation.
type AuditSink interface {
	Record(ctx context.Context, msg config.AuditMessage)
}

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
)

type RoleAuthorizer struct{}

var roleActions = map[string]map[Action]bool{
	RoleSuperAdmin: nil, // nil means everything
	RoleAdmin:      nil,
	RoleOperator: {
		ActionSimulatePlan:    true,
		ActionCreateCredit:    true,
		ActionRegisterPayment: true,
		ActionRecordMovement:  true,
		ActionViewCashFlow:    true,
	},
	RoleViewer: {
		ActionSimulatePlan: true,
		ActionViewCashFlow: true,
	},
}

func (RoleAuthorizer) CanPerform(actor Actor, action Action) error {
	allowed, known := roleActions[actor.Role]
	if !known {
		return models.ErrPermissionDenied
	}
	if allowed == nil || allowed[action] {
		return nil
	}
	return models.ErrPermissionDenied
}

type DefaultMembershipResolver struct{}

func (DefaultMembershipResolver) ResolveBusiness(actor Actor, requestedBusinessId string) (string, error) {
	if actor.Role == RoleSuperAdmin || actor.Role == RoleAdmin {
		if requestedBusinessId != "" {
			return requestedBusinessId, nil
		}
		if actor.BusinessId != "" {
			return actor.BusinessId, nil
		}
		return "", models.ErrPermissionDenied
	}
	if actor.BusinessId == "" {
		return "", models.ErrPermissionDenied
	}
	if requestedBusinessId != "" && requestedBusinessId != actor.BusinessId {
		return "", models.ErrPermissionDenied
	}
	return actor.BusinessId, nil
}

// PubSubAuditSink publishes audit events to the configured topic.
// Publish errors are logged and swallowed so they never mask the outcome of
// the financial operation they describe.
type PubSubAuditSink struct {
	Logger *logrus.Logger
}

func (s PubSubAuditSink) Record(ctx context.Context, msg config.AuditMessage) {
	if err := config.PublishAuditMessage(ctx, msg); err != nil {
		config.LogError(s.Logger, "collaborators.go", "PubSubAuditSink.Record", "PublishAuditMessage", msg.Action, err)
	}
}

// LoggerAuditSink writes audit events to the structured log only. Used in
// tests and when pub/sub is not configured.
type LoggerAuditSink struct {
	Logger *logrus.Logger
}

func (s LoggerAuditSink) Record(ctx context.Context, msg config.AuditMessage) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"field":          "Audit",
		"business_id":    msg.BusinessId,
		"user_id":        msg.UserId,
		"action":         msg.Action,
		"reference_id":   msg.ReferenceId,
		"reference_type": msg.ReferenceType,
		"correlation_id": msg.CorrelationId,
	}).Info(msg.Detail)
}
