package workflow

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/sirupsen/logrus"
)

// blockingSink never acknowledges; it stands in for an unreachable audit
// channel.
type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Record(ctx context.Context, msg config.AuditMessage) {
	<-s.release
}

func TestRecordAudit_DoesNotBlockOnSlowSink(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	defer close(sink.release)
	engine := NewEngine(nil, logrus.New(), nil, nil, nil, sink)

	done := make(chan struct{})
	go func() {
		engine.recordAudit(context.Background(), Actor{UserId: 1, UserName: "op"},
			"biz-1", ActionRegisterPayment, 7, "Payment", "payment applied")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit sink stalled the operation")
	}
}

type denyAllAuthorizer struct{}

func (denyAllAuthorizer) CanPerform(actor Actor, action Action) error {
	return models.ErrPermissionDenied
}

func TestAuthorize_UsesInjectedAuthorizer(t *testing.T) {
	engine := NewEngine(nil, logrus.New(), nil, nil, denyAllAuthorizer{}, nil)
	if err := engine.Authorize(Actor{Role: RoleSuperAdmin}, ActionRunOverdueSweep); err != models.ErrPermissionDenied {
		t.Fatalf("injected authorizer must decide, got %v", err)
	}

	engine = NewEngine(nil, logrus.New(), nil, nil, nil, nil)
	if err := engine.Authorize(Actor{Role: RoleAdmin}, ActionRunOverdueSweep); err != nil {
		t.Fatalf("default role policy should allow admin sweeps: %v", err)
	}
	if err := engine.Authorize(Actor{Role: RoleViewer}, ActionRunOverdueSweep); err != models.ErrPermissionDenied {
		t.Fatalf("viewer must not trigger sweeps, got %v", err)
	}
}
