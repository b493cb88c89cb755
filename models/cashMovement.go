package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashMovement is one row of the append-only ledger. BalanceAfter snapshots
// the business balance as of this row, so any prefix of the ledger can be
// audited without replaying the whole history.
type CashMovement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;size:64;not null;index:idx_movement_biz_created,priority:1" json:"business_id"`
	MovementType  MovementType    `gorm:"type:enum('initial_capital','capital_injection','withdrawal','loan_disbursement','payment_received','interest_earned');not null" json:"movement_type"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Description   string          `gorm:"type:text" json:"description"`
	ReferenceId   *int            `gorm:"index" json:"reference_id"`
	ReferenceType string          `gorm:"size:32" json:"reference_type"`
	RecordedBy    string          `gorm:"size:64" json:"recorded_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_movement_biz_created,priority:2" json:"created_at"`
}

func (m *CashMovement) BeforeUpdate(tx *gorm.DB) error {
	return ErrMovementImmutable
}

func (m *CashMovement) BeforeDelete(tx *gorm.DB) error {
	return ErrMovementImmutable
}

// SignedAmount is the amount with the balance-effect sign applied.
func (m *CashMovement) SignedAmount() decimal.Decimal {
	if m.MovementType.IsExpense() {
		return m.Amount.Neg()
	}
	return m.Amount
}

type MovementFilter struct {
	Type *MovementType
	From *time.Time
	To   *time.Time
}

// GetCashMovements lists movements in ledger order: creation time, then id
// as the tiebreaker for rows created in the same instant.
func GetCashMovements(ctx context.Context, businessId string, filter *MovementFilter) ([]*CashMovement, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter != nil {
		if filter.Type != nil {
			dbCtx = dbCtx.Where("movement_type = ?", *filter.Type)
		}
		if filter.From != nil {
			dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			dbCtx = dbCtx.Where("created_at <= ?", *filter.To)
		}
	}
	var movements []*CashMovement
	err := dbCtx.Order("created_at ASC, id ASC").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// GetLastMovement returns the newest ledger row for the business, or nil when
// the ledger is empty.
func GetLastMovement(tx *gorm.DB, businessId string) (*CashMovement, error) {
	var movement CashMovement
	err := tx.Where("business_id = ?", businessId).
		Order("created_at DESC, id DESC").
		First(&movement).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &movement, nil
}

// ReplayBalance folds the signed amounts of a movement slice into the balance
// the ledger implies, independent of the stored snapshots.
func ReplayBalance(movements []*CashMovement) decimal.Decimal {
	balance := decimal.Zero
	for _, m := range movements {
		balance = balance.Add(m.SignedAmount())
	}
	return balance
}
