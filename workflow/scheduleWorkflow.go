package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ScheduleLine struct {
	InstallmentId   *int            `json:"installment_id"`
	DueDate         time.Time       `json:"due_date" binding:"required"`
	ScheduledAmount decimal.Decimal `json:"scheduled_amount" binding:"required"`
}

// rewriteLockedSchedule adjusts an in-flight schedule in place. Every line
// must reference a distinct existing installment and may not schedule below
// what that installment has already collected.
func rewriteLockedSchedule(installments []models.Installment, lines []ScheduleLine, now time.Time) error {
	if len(lines) != len(installments) {
		return models.ErrScheduleLocked
	}
	byId := make(map[int]*models.Installment, len(installments))
	for i := range installments {
		byId[installments[i].ID] = &installments[i]
	}
	for _, line := range lines {
		if line.InstallmentId == nil {
			return models.ErrInvalidInstallment
		}
		existing, ok := byId[*line.InstallmentId]
		if !ok {
			// Unknown id, or an id this request already consumed. With the
			// count check above, a repeat would leave one real installment
			// unreferenced and silently overwrite another.
			return models.ErrInvalidInstallment
		}
		delete(byId, *line.InstallmentId)
		if line.ScheduledAmount.LessThan(existing.PaidAmount) {
			return models.ErrAmountBelowPaid
		}
		existing.DueDate = line.DueDate
		existing.ScheduledAmount = line.ScheduledAmount
		existing.Refresh(now)
	}
	return nil
}

// UpdateCreditSchedule replaces or adjusts a credit's installment plan.
//
// With no collected payments the whole schedule may be swapped for one of any
// length. Once any installment carries a paid amount the count is locked:
// each incoming line must reference an existing installment and may not
// schedule less than what that installment has already collected. The ledger
// is never touched here; reshaping future obligations moves no cash.
func (e *Engine) UpdateCreditSchedule(ctx context.Context, actor Actor, creditId int, lines []ScheduleLine) (*models.Credit, error) {
	ctx, span := e.startSpan(ctx, "UpdateCreditSchedule")
	defer span.End()

	if err := e.authz.CanPerform(actor, ActionUpdateSchedule); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("schedule must have at least one installment")
	}
	for _, line := range lines {
		if !line.ScheduledAmount.IsPositive() {
			return nil, fmt.Errorf("scheduled amounts must be positive")
		}
	}

	ctx, _, err := e.resolveCreditBusiness(ctx, actor, creditId)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var credit *models.Credit
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		credit, err = models.GetCreditForUpdate(tx, creditId)
		if err != nil {
			return err
		}

		hasPaid := false
		totalPaid := decimal.Zero
		for _, inst := range credit.Installments {
			if inst.PaidAmount.IsPositive() {
				hasPaid = true
			}
			totalPaid = totalPaid.Add(inst.PaidAmount)
		}

		var rebuilt []models.Installment
		if hasPaid {
			if err := rewriteLockedSchedule(credit.Installments, lines, now); err != nil {
				return err
			}
			for _, inst := range credit.Installments {
				err := tx.Model(&models.Installment{}).Where("id = ?", inst.ID).
					Updates(map[string]interface{}{
						"due_date":         inst.DueDate,
						"scheduled_amount": inst.ScheduledAmount,
						"status":           inst.Status,
					}).Error
				if err != nil {
					config.LogError(e.logger, "scheduleWorkflow.go", "UpdateCreditSchedule", "Update Installment", inst.ID, err)
					return err
				}
			}
			rebuilt = credit.Installments
		} else {
			// Nothing collected yet: full replacement, renumbered from one.
			err := tx.Where("credit_id = ?", credit.ID).
				Delete(&models.Installment{}).Error
			if err != nil {
				config.LogError(e.logger, "scheduleWorkflow.go", "UpdateCreditSchedule", "Delete Installments", credit.ID, err)
				return err
			}
			rebuilt = make([]models.Installment, 0, len(lines))
			for i, line := range lines {
				inst := models.Installment{
					CreditId:          credit.ID,
					BusinessId:        credit.BusinessId,
					InstallmentNumber: i + 1,
					DueDate:           line.DueDate,
					ScheduledAmount:   line.ScheduledAmount,
					PaidAmount:        decimal.Zero,
				}
				inst.Refresh(now)
				rebuilt = append(rebuilt, inst)
			}
			if err := tx.Create(&rebuilt).Error; err != nil {
				config.LogError(e.logger, "scheduleWorkflow.go", "UpdateCreditSchedule", "Create Installments", credit.ID, err)
				return err
			}
		}

		totalScheduled := decimal.Zero
		for _, inst := range rebuilt {
			totalScheduled = totalScheduled.Add(inst.ScheduledAmount)
		}
		newRemaining := totalScheduled.Sub(totalPaid)
		if newRemaining.IsNegative() {
			return models.ErrNegativeBalance
		}

		credit.Installments = rebuilt
		credit.RemainingBalance = newRemaining
		credit.Status = models.DeriveCreditStatus(credit.Status, credit.RemainingBalance, credit.Installments)
		err = tx.Model(&models.Credit{}).Where("id = ?", credit.ID).
			Updates(map[string]interface{}{
				"remaining_balance": credit.RemainingBalance,
				"status":            credit.Status,
			}).Error
		if err != nil {
			config.LogError(e.logger, "scheduleWorkflow.go", "UpdateCreditSchedule", "Update Credit", credit.ID, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordAudit(ctx, actor, credit.BusinessId, ActionUpdateSchedule, credit.ID, "Credit",
		fmt.Sprintf("schedule rewritten to %d installments", len(lines)))
	return credit, nil
}
