package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Engine bundles the credit lifecycle operations with their injected
// collaborators. Persistence runs through the *gorm.DB it holds so tests can
// point it at a different database.
type Engine struct {
	db      *gorm.DB
	logger  *logrus.Logger
	tracer  trace.Tracer
	members MembershipResolver
	authz   Authorizer
	audit   AuditSink
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, tracer trace.Tracer, members MembershipResolver, authz Authorizer, audit AuditSink) *Engine {
	if members == nil {
		members = DefaultMembershipResolver{}
	}
	if authz == nil {
		authz = RoleAuthorizer{}
	}
	if audit == nil {
		audit = LoggerAuditSink{Logger: logger}
	}
	return &Engine{
		db:      db,
		logger:  logger,
		tracer:  tracer,
		members: members,
		authz:   authz,
		audit:   audit,
	}
}

// SetDB points the engine at a database after startup. The HTTP server binds
// its port before the database connection is ready.
func (e *Engine) SetDB(db *gorm.DB) {
	e.db = db
}

// Authorize runs the injected authorizer. Callers that gate work outside an
// engine operation (ops endpoints, batch triggers) must use this rather than
// re-implementing the role policy.
func (e *Engine) Authorize(actor Actor, action Action) error {
	return e.authz.CanPerform(actor, action)
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name)
}

// recordAudit fires the audit event for a committed operation. The sink runs
// on its own goroutine with a detached context: a slow or unreachable audit
// channel must never delay the operation it describes.
func (e *Engine) recordAudit(ctx context.Context, actor Actor, businessId string, action Action, referenceId int, referenceType, detail string) {
	msg := config.AuditMessage{
		BusinessId:    businessId,
		UserId:        actor.UserId,
		Action:        string(action),
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		Detail:        detail,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId(ctx),
	}
	go e.audit.Record(context.WithoutCancel(ctx), msg)
}

// resolveCreditBusiness authorizes the actor against the credit's owning
// business and returns a context scoped to that business, so tenant scoping
// inside the posting transaction matches the rows being written.
func (e *Engine) resolveCreditBusiness(ctx context.Context, actor Actor, creditId int) (context.Context, string, error) {
	var ref models.Credit
	unscoped := utils.SetSkipTenantScopeInContext(ctx, true)
	if err := e.db.WithContext(unscoped).Select("id", "business_id").First(&ref, creditId).Error; err != nil {
		return ctx, "", utils.ErrorRecordNotFound
	}
	businessId, err := e.members.ResolveBusiness(actor, ref.BusinessId)
	if err != nil || businessId != ref.BusinessId {
		return ctx, "", models.ErrPermissionDenied
	}
	return utils.SetBusinessIdInContext(ctx, businessId), businessId, nil
}

func correlationId(ctx context.Context) string {
	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	return cid
}
