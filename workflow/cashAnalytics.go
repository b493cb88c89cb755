package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/shopspring/decimal"
)

type CashFlowSummary struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Net           decimal.Decimal `json:"net"`
}

type CashFlowResult struct {
	Movements []*models.CashMovement `json:"movements"`
	Summary   CashFlowSummary        `json:"summary"`
}

type ReconcileResult struct {
	IsReconciled    bool            `json:"is_reconciled"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
}

type ForecastResult struct {
	ExpectedIncome   decimal.Decimal `json:"expected_income"`
	ProjectedBalance decimal.Decimal `json:"projected_balance"`
}

// GetCashFlow replays the movement log for a date range and sums income
// against expense.
func (e *Engine) GetCashFlow(ctx context.Context, actor Actor, businessId string, from, to *time.Time) (*CashFlowResult, error) {
	if err := e.authz.CanPerform(actor, ActionViewCashFlow); err != nil {
		return nil, err
	}
	resolved, err := e.members.ResolveBusiness(actor, businessId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, resolved)

	movements, err := models.GetCashMovements(ctx, resolved, &models.MovementFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	summary := CashFlowSummary{TotalIncome: decimal.Zero, TotalExpenses: decimal.Zero}
	for _, m := range movements {
		if m.MovementType.IsIncome() {
			summary.TotalIncome = summary.TotalIncome.Add(m.Amount)
		} else {
			summary.TotalExpenses = summary.TotalExpenses.Add(m.Amount)
		}
	}
	summary.Net = summary.TotalIncome.Sub(summary.TotalExpenses)

	return &CashFlowResult{Movements: movements, Summary: summary}, nil
}

// compareBalances checks the stored balance against the newest movement's
// snapshot, or against initial capital when the ledger is empty.
func compareBalances(business *models.Business, last *models.CashMovement) *ReconcileResult {
	expected := business.InitialCapital
	if last != nil {
		expected = last.BalanceAfter
	}
	discrepancy := business.CurrentBalance.Sub(expected)
	return &ReconcileResult{
		IsReconciled:    discrepancy.IsZero(),
		CurrentBalance:  business.CurrentBalance,
		ExpectedBalance: expected,
		Discrepancy:     discrepancy,
	}
}

// Reconcile checks the business balance against the newest movement's
// snapshot, or against initial capital when the ledger is empty. It reports
// drift; it never corrects it. The balance is read from the database row, not
// the cache.
func (e *Engine) Reconcile(ctx context.Context, actor Actor, businessId string) (*ReconcileResult, error) {
	if err := e.authz.CanPerform(actor, ActionRunReconcile); err != nil {
		return nil, err
	}
	resolved, err := e.members.ResolveBusiness(actor, businessId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, resolved)

	// The check compares the stored row against the ledger, so the row must
	// come from the database. Reading through the redis cache here would
	// compare against a possibly stale balance and report phantom drift or
	// mask real drift.
	var business models.Business
	if err := e.db.WithContext(ctx).Where("id = ?", resolved).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	last, err := models.GetLastMovement(e.db.WithContext(ctx), resolved)
	if err != nil {
		return nil, err
	}
	result := compareBalances(&business, last)

	if !result.IsReconciled {
		_ = e.db.WithContext(ctx).Create(&models.ReconciliationReport{
			BusinessId:    resolved,
			CheckType:     "LEDGER_BALANCE",
			EntityType:    "Business",
			EntityId:      resolved,
			Details:       fmt.Sprintf("current_balance=%s != latest balance_after=%s", result.CurrentBalance, result.ExpectedBalance),
			CorrelationId: correlationId(ctx),
		}).Error
	}
	return result, nil
}

// Forecast projects the balance at targetDate assuming every unpaid
// installment due by then is collected in full.
func (e *Engine) Forecast(ctx context.Context, actor Actor, businessId string, targetDate time.Time) (*ForecastResult, error) {
	if err := e.authz.CanPerform(actor, ActionViewCashFlow); err != nil {
		return nil, err
	}
	resolved, err := e.members.ResolveBusiness(actor, businessId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, resolved)

	business, err := models.GetBusinessById(ctx, resolved)
	if err != nil {
		return nil, err
	}

	var installments []models.Installment
	err = e.db.WithContext(ctx).
		Where("business_id = ? AND status IN ? AND due_date <= ?",
			resolved, []models.InstallmentStatus{models.InstallmentStatusPending, models.InstallmentStatusPartial}, targetDate).
		Find(&installments).Error
	if err != nil {
		return nil, err
	}

	expected := decimal.Zero
	for _, inst := range installments {
		expected = expected.Add(inst.Outstanding())
	}

	return &ForecastResult{
		ExpectedIncome:   expected,
		ProjectedBalance: business.CurrentBalance.Add(expected),
	}, nil
}
