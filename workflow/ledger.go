package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// appendMovement writes one ledger row and moves the business balance in the
// same transaction. The caller must hold the business posting lock and pass
// the business loaded via GetBusinessForUpdate; the balance on that struct is
// mutated in place so subsequent appends in the same transaction chain
// correctly.
func appendMovement(tx *gorm.DB, logger *logrus.Logger, business *models.Business, movementType models.MovementType, amount decimal.Decimal, description string, referenceId *int, referenceType string, recordedBy string) (*models.CashMovement, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("movement amount must be positive, got %s", amount)
	}

	var newBalance decimal.Decimal
	switch {
	case movementType.IsIncome():
		newBalance = business.CurrentBalance.Add(amount)
	case movementType.IsExpense():
		newBalance = business.CurrentBalance.Sub(amount)
	default:
		return nil, fmt.Errorf("unclassified movement type %s", movementType)
	}

	if newBalance.IsNegative() {
		return nil, models.ErrInsufficientFunds
	}

	movement := models.CashMovement{
		BusinessId:    business.ID,
		MovementType:  movementType,
		Amount:        amount,
		BalanceAfter:  newBalance,
		Description:   description,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		RecordedBy:    recordedBy,
	}
	if err := tx.Create(&movement).Error; err != nil {
		config.LogError(logger, "ledger.go", "appendMovement", "Create CashMovement", business.ID, err)
		return nil, err
	}

	err := tx.Model(&models.Business{}).Where("id = ?", business.ID).
		Update("current_balance", newBalance).Error
	if err != nil {
		config.LogError(logger, "ledger.go", "appendMovement", "Update Business balance", business.ID, err)
		return nil, err
	}
	business.CurrentBalance = newBalance

	return &movement, nil
}

// NewMovement is a manually recorded capital event. Disbursements and payment
// receipts are written by their own workflows, not through this input.
type NewMovement struct {
	BusinessId   string          `json:"business_id"`
	MovementType string          `json:"movement_type" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Description  string          `json:"description"`
}

// RegisterCapitalMovement records a capital_injection, withdrawal or
// interest_earned movement against the actor's business.
func (e *Engine) RegisterCapitalMovement(ctx context.Context, actor Actor, input NewMovement) (*models.CashMovement, error) {
	ctx, span := e.startSpan(ctx, "RegisterCapitalMovement")
	defer span.End()

	if err := e.authz.CanPerform(actor, ActionRecordMovement); err != nil {
		return nil, err
	}
	businessId, err := e.members.ResolveBusiness(actor, input.BusinessId)
	if err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	movementType, err := models.ParseMovementType(input.MovementType)
	if err != nil {
		return nil, err
	}
	switch movementType {
	case models.MovementTypeCapitalInjection, models.MovementTypeWithdrawal, models.MovementTypeInterestEarned:
	default:
		return nil, fmt.Errorf("movement type %s is recorded by its own workflow", movementType)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("movement amount must be positive")
	}

	var movement *models.CashMovement
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
		movement, err = appendMovement(tx, e.logger, business, movementType, input.Amount, input.Description, nil, "", actor.UserName)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := business.StoreRedis(); err != nil {
		config.LogError(e.logger, "ledger.go", "RegisterCapitalMovement", "StoreRedis", businessId, err)
	}

	e.recordAudit(ctx, actor, businessId, ActionRecordMovement, movement.ID, "CashMovement",
		fmt.Sprintf("%s of %s recorded", movementType, input.Amount))
	return movement, nil
}
