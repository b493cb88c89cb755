package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewCredit struct {
	ClientId         int             `json:"client_id" binding:"required"`
	BusinessId       string          `json:"business_id"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermDays         int             `json:"term_days" binding:"required"`
	PaymentFrequency string          `json:"payment_frequency" binding:"required"`
	StartDate        *time.Time      `json:"start_date"`
	Notes            string          `json:"notes"`
}

// SimulatePlan computes a schedule without touching the database.
func (e *Engine) SimulatePlan(ctx context.Context, actor Actor, amount, rate decimal.Decimal, termDays int, frequency string, startDate *time.Time) (*models.AmortizationPlan, error) {
	if err := e.authz.CanPerform(actor, ActionSimulatePlan); err != nil {
		return nil, err
	}
	paymentFrequency, err := models.ParsePaymentFrequency(frequency)
	if err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	if startDate != nil {
		start = *startDate
	}
	return models.ComputePlan(amount, rate, termDays, paymentFrequency, utils.TruncateToDate(start))
}

// CreateCredit disburses a loan: credit row, installment schedule and the
// loan_disbursement ledger movement commit together or not at all.
func (e *Engine) CreateCredit(ctx context.Context, actor Actor, input NewCredit) (*models.Credit, error) {
	ctx, span := e.startSpan(ctx, "CreateCredit")
	defer span.End()

	if err := e.authz.CanPerform(actor, ActionCreateCredit); err != nil {
		return nil, err
	}
	businessId, err := e.members.ResolveBusiness(actor, input.BusinessId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	paymentFrequency, err := models.ParsePaymentFrequency(input.PaymentFrequency)
	if err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	if input.StartDate != nil {
		start = *input.StartDate
	}
	start = utils.TruncateToDate(start)

	plan, err := models.ComputePlan(input.Amount, input.InterestRate, input.TermDays, paymentFrequency, start)
	if err != nil {
		return nil, err
	}

	var credit models.Credit
	var business *models.Business
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		business, err = models.GetBusinessForUpdate(tx, businessId)
		if err != nil {
			return err
		}

		// Unscoped lookup so a client from another business surfaces as a
		// cross-business rejection, not a not-found.
		var client models.Client
		unscoped := utils.SetSkipTenantScopeInContext(ctx, true)
		if err := tx.WithContext(unscoped).First(&client, input.ClientId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if client.BusinessId != businessId {
			return models.ErrCrossBusinessReference
		}

		// Disbursement cannot exceed available cash.
		if input.Amount.GreaterThan(business.CurrentBalance) {
			return models.ErrInsufficientFunds
		}

		credit = models.Credit{
			BusinessId:        businessId,
			ClientId:          client.ID,
			Amount:            plan.Principal,
			InterestRate:      plan.InterestRate,
			PaymentFrequency:  paymentFrequency,
			StartDate:         start,
			EndDate:           plan.EndDate,
			TermDays:          input.TermDays,
			TotalWithInterest: plan.TotalWithInterest,
			RemainingBalance:  plan.TotalWithInterest,
			Status:            models.CreditStatusActive,
			Notes:             input.Notes,
		}
		if err := tx.Create(&credit).Error; err != nil {
			config.LogError(e.logger, "creditWorkflow.go", "CreateCredit", "Create Credit", input, err)
			return err
		}

		installments := make([]models.Installment, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			installments = append(installments, models.Installment{
				CreditId:          credit.ID,
				BusinessId:        businessId,
				InstallmentNumber: line.InstallmentNumber,
				DueDate:           line.DueDate,
				ScheduledAmount:   line.ScheduledAmount,
				PaidAmount:        decimal.Zero,
				Status:            models.InstallmentStatusPending,
			})
		}
		if err := tx.Create(&installments).Error; err != nil {
			config.LogError(e.logger, "creditWorkflow.go", "CreateCredit", "Create Installments", credit.ID, err)
			return err
		}
		credit.Installments = installments

		_, err = appendMovement(tx, e.logger, business, models.MovementTypeLoanDisbursement, plan.Principal,
			fmt.Sprintf("Disbursement of credit #%d to %s", credit.ID, client.Name),
			&credit.ID, "Credit", actor.UserName)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := business.StoreRedis(); err != nil {
		config.LogError(e.logger, "creditWorkflow.go", "CreateCredit", "StoreRedis", businessId, err)
	}
	e.recordAudit(ctx, actor, businessId, ActionCreateCredit, credit.ID, "Credit",
		fmt.Sprintf("credit of %s disbursed over %d installments", plan.Principal, plan.InstallmentCount))
	return &credit, nil
}

// CancelCredit marks an active credit cancelled. The disbursed cash stays on
// the ledger; cancellation only stops the schedule from accruing overdue
// states.
func (e *Engine) CancelCredit(ctx context.Context, actor Actor, creditId int) (*models.Credit, error) {
	ctx, span := e.startSpan(ctx, "CancelCredit")
	defer span.End()

	if err := e.authz.CanPerform(actor, ActionCancelCredit); err != nil {
		return nil, err
	}
	ctx, _, err := e.resolveCreditBusiness(ctx, actor, creditId)
	if err != nil {
		return nil, err
	}

	var credit *models.Credit
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		credit, err = models.GetCreditForUpdate(tx, creditId)
		if err != nil {
			return err
		}
		if credit.Status == models.CreditStatusPaid {
			return models.ErrAlreadySettled
		}
		if credit.Status == models.CreditStatusCancelled {
			return nil
		}
		credit.Status = models.CreditStatusCancelled
		return tx.Model(&models.Credit{}).Where("id = ?", credit.ID).
			Update("status", models.CreditStatusCancelled).Error
	})
	if err != nil {
		return nil, err
	}

	e.recordAudit(ctx, actor, credit.BusinessId, ActionCancelCredit, credit.ID, "Credit", "credit cancelled")
	return credit, nil
}
