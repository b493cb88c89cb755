package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewPayment struct {
	CreditId      int             `json:"credit_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate   *time.Time      `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes"`
	InstallmentId *int            `json:"installment_id"`
}

// distributePayment applies an untargeted payment across installments:
// overdue rows first, then ascending due date. It mutates paid amounts and
// statuses in place and returns the ids of the rows it touched. The returned
// remainder must be zero; a positive remainder is an invariant violation the
// caller surfaces.
func distributePayment(installments []models.Installment, amount decimal.Decimal, paymentDate time.Time) (applied []int, remainder decimal.Decimal) {
	order := make([]int, len(installments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := &installments[order[a]], &installments[order[b]]
		overdueA := ia.DueDate.Before(paymentDate)
		overdueB := ib.DueDate.Before(paymentDate)
		if overdueA != overdueB {
			return overdueA
		}
		return ia.DueDate.Before(ib.DueDate)
	})

	pool := amount
	for _, idx := range order {
		if !pool.IsPositive() {
			break
		}
		inst := &installments[idx]
		outstanding := inst.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		slice := decimal.Min(pool, outstanding)
		inst.PaidAmount = inst.PaidAmount.Add(slice)
		inst.Refresh(paymentDate)
		pool = pool.Sub(slice)
		applied = append(applied, inst.ID)
	}
	return applied, pool
}

// applyToInstallment applies the full amount to one targeted installment.
func applyToInstallment(installments []models.Installment, installmentId int, amount decimal.Decimal, paymentDate time.Time) (int, error) {
	for i := range installments {
		inst := &installments[i]
		if inst.ID != installmentId {
			continue
		}
		if amount.GreaterThan(inst.Outstanding()) {
			return 0, models.ErrOverInstallmentPayment
		}
		inst.PaidAmount = inst.PaidAmount.Add(amount)
		inst.Refresh(paymentDate)
		return inst.ID, nil
	}
	return 0, models.ErrInvalidInstallment
}

// RegisterPayment applies a payment to a credit: installment allocation,
// credit balance, the immutable receipt and the payment_received ledger
// movement commit atomically.
func (e *Engine) RegisterPayment(ctx context.Context, actor Actor, input NewPayment) (*models.Payment, error) {
	ctx, span := e.startSpan(ctx, "RegisterPayment")
	defer span.End()

	if err := e.authz.CanPerform(actor, ActionRegisterPayment); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	now := time.Now().UTC()
	paymentDate := now
	if input.PaymentDate != nil {
		paymentDate = input.PaymentDate.UTC()
	}
	if paymentDate.After(now) {
		return nil, models.ErrFuturePaymentDate
	}

	ctx, businessId, err := e.resolveCreditBusiness(ctx, actor, input.CreditId)
	if err != nil {
		return nil, err
	}

	var payment models.Payment
	var business *models.Business
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		var err error
		business, err = models.GetBusinessForUpdate(tx, businessId)
		if err != nil {
			return err
		}
		credit, err := models.GetCreditForUpdate(tx, input.CreditId)
		if err != nil {
			return err
		}

		if credit.Status == models.CreditStatusPaid {
			return models.ErrAlreadySettled
		}
		if input.Amount.GreaterThan(credit.RemainingBalance) {
			return models.ErrOverPayment
		}

		var touched []int
		if input.InstallmentId != nil {
			id, err := applyToInstallment(credit.Installments, *input.InstallmentId, input.Amount, paymentDate)
			if err != nil {
				return err
			}
			touched = []int{id}
		} else {
			var remainder decimal.Decimal
			touched, remainder = distributePayment(credit.Installments, input.Amount, paymentDate)
			if !remainder.IsZero() {
				config.LogError(e.logger, "paymentWorkflow.go", "RegisterPayment", "distributePayment remainder", remainder, models.ErrUnappliedRemainder)
				return models.ErrUnappliedRemainder
			}
		}

		touchedSet := make(map[int]bool, len(touched))
		for _, id := range touched {
			touchedSet[id] = true
		}
		for i := range credit.Installments {
			inst := &credit.Installments[i]
			if !touchedSet[inst.ID] {
				continue
			}
			err := tx.Model(&models.Installment{}).Where("id = ?", inst.ID).
				Updates(map[string]interface{}{"paid_amount": inst.PaidAmount, "status": inst.Status}).Error
			if err != nil {
				config.LogError(e.logger, "paymentWorkflow.go", "RegisterPayment", "Update Installment", inst.ID, err)
				return err
			}
		}

		credit.RemainingBalance = credit.RemainingBalance.Sub(input.Amount)
		credit.Status = models.DeriveCreditStatus(credit.Status, credit.RemainingBalance, credit.Installments)
		err = tx.Model(&models.Credit{}).Where("id = ?", credit.ID).
			Updates(map[string]interface{}{"remaining_balance": credit.RemainingBalance, "status": credit.Status}).Error
		if err != nil {
			config.LogError(e.logger, "paymentWorkflow.go", "RegisterPayment", "Update Credit", credit.ID, err)
			return err
		}

		payment = models.Payment{
			CreditId:              credit.ID,
			BusinessId:            businessId,
			InstallmentId:         input.InstallmentId,
			Amount:                input.Amount,
			PaymentDate:           paymentDate,
			PaymentMethod:         input.PaymentMethod,
			Notes:                 input.Notes,
			RemainingBalanceAfter: credit.RemainingBalance,
			RecordedBy:            actor.UserName,
		}
		if err := tx.Create(&payment).Error; err != nil {
			config.LogError(e.logger, "paymentWorkflow.go", "RegisterPayment", "Create Payment", credit.ID, err)
			return err
		}

		_, err = appendMovement(tx, e.logger, business, models.MovementTypePaymentReceived, input.Amount,
			fmt.Sprintf("Payment on credit #%d", credit.ID), &payment.ID, "Payment", actor.UserName)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := business.StoreRedis(); err != nil {
		config.LogError(e.logger, "paymentWorkflow.go", "RegisterPayment", "StoreRedis", business.ID, err)
	}
	e.recordAudit(ctx, actor, payment.BusinessId, ActionRegisterPayment, payment.ID, "Payment",
		fmt.Sprintf("payment of %s applied to credit #%d", input.Amount, input.CreditId))
	return &payment, nil
}
