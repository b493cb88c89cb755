package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/loans_backend/models"
)

func TestRoleAuthorizer(t *testing.T) {
	authz := RoleAuthorizer{}

	admin := Actor{Role: RoleAdmin}
	operator := Actor{Role: RoleOperator}
	viewer := Actor{Role: RoleViewer}
	unknown := Actor{Role: "intern"}

	if err := authz.CanPerform(admin, ActionUpdateSchedule); err != nil {
		t.Fatalf("admin should re-amortize: %v", err)
	}
	if err := authz.CanPerform(operator, ActionRegisterPayment); err != nil {
		t.Fatalf("operator should register payments: %v", err)
	}
	if err := authz.CanPerform(operator, ActionUpdateSchedule); err != models.ErrPermissionDenied {
		t.Fatalf("operator must not re-amortize, got %v", err)
	}
	if err := authz.CanPerform(viewer, ActionCreateCredit); err != models.ErrPermissionDenied {
		t.Fatalf("viewer must not create credits, got %v", err)
	}
	if err := authz.CanPerform(viewer, ActionViewCashFlow); err != nil {
		t.Fatalf("viewer should read cash flow: %v", err)
	}
	if err := authz.CanPerform(unknown, ActionSimulatePlan); err != models.ErrPermissionDenied {
		t.Fatalf("unknown role must be denied, got %v", err)
	}
}

func TestDefaultMembershipResolver(t *testing.T) {
	resolver := DefaultMembershipResolver{}

	operator := Actor{Role: RoleOperator, BusinessId: "biz-1"}
	admin := Actor{Role: RoleAdmin, BusinessId: "biz-1"}

	// Non-privileged actors are pinned to their own business.
	if got, err := resolver.ResolveBusiness(operator, ""); err != nil || got != "biz-1" {
		t.Fatalf("got (%s, %v)", got, err)
	}
	if got, err := resolver.ResolveBusiness(operator, "biz-1"); err != nil || got != "biz-1" {
		t.Fatalf("got (%s, %v)", got, err)
	}
	if _, err := resolver.ResolveBusiness(operator, "biz-2"); err != models.ErrPermissionDenied {
		t.Fatalf("cross-business access must be denied, got %v", err)
	}
	if _, err := resolver.ResolveBusiness(Actor{Role: RoleOperator}, "biz-2"); err != models.ErrPermissionDenied {
		t.Fatalf("unassigned operator must be denied, got %v", err)
	}

	// Privileged actors may target any business.
	if got, err := resolver.ResolveBusiness(admin, "biz-2"); err != nil || got != "biz-2" {
		t.Fatalf("got (%s, %v)", got, err)
	}
	if got, err := resolver.ResolveBusiness(admin, ""); err != nil || got != "biz-1" {
		t.Fatalf("admin falls back to own business, got (%s, %v)", got, err)
	}
}
