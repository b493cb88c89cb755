package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Credit struct {
	ID                int              `gorm:"primary_key" json:"id"`
	BusinessId        string           `gorm:"index;size:64;not null;index:idx_credit_biz_status,priority:1" json:"business_id"`
	ClientId          int              `gorm:"index;not null" json:"client_id"`
	Amount            decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	InterestRate      decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"interest_rate"`
	PaymentFrequency  PaymentFrequency `gorm:"type:enum('daily','weekly','biweekly','monthly');not null" json:"payment_frequency"`
	StartDate         time.Time        `gorm:"index;not null" json:"start_date"`
	EndDate           time.Time        `gorm:"not null" json:"end_date"`
	TermDays          int              `gorm:"not null" json:"term_days"`
	TotalWithInterest decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"total_with_interest"`
	RemainingBalance  decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"remaining_balance"`
	Status            CreditStatus     `gorm:"type:enum('active','paid','overdue','cancelled');default:'active';index:idx_credit_biz_status,priority:2" json:"status"`
	Notes             string           `gorm:"type:text" json:"notes"`
	Installments      []Installment    `gorm:"foreignKey:CreditId" json:"installments"`
	Payments          []Payment        `gorm:"foreignKey:CreditId" json:"payments"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Credits are cancelled by status, never removed: payments and ledger
// movements reference them forever.
func (c *Credit) BeforeDelete(tx *gorm.DB) error {
	return ErrCreditDeletion
}

// GetCredit fetches a credit with its installments ordered by number.
func GetCredit(ctx context.Context, businessId string, id int) (*Credit, error) {
	db := config.GetDB()
	var credit Credit
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		First(&credit, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &credit, nil
}

// GetCreditForUpdate loads the credit and its installments under an exclusive
// row lock, for use inside posting transactions.
func GetCreditForUpdate(tx *gorm.DB, id int) (*Credit, error) {
	var credit Credit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		First(&credit, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &credit, nil
}

func GetCreditsByBusiness(ctx context.Context, businessId string, status *CreditStatus) ([]*Credit, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var credits []*Credit
	err := dbCtx.
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		Order("created_at DESC").
		Find(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

// DeriveCreditStatus recomputes the credit-level status from its remaining
// balance and installments. Cancelled credits keep their status.
func DeriveCreditStatus(current CreditStatus, remainingBalance decimal.Decimal, installments []Installment) CreditStatus {
	if current == CreditStatusCancelled {
		return CreditStatusCancelled
	}
	if remainingBalance.LessThanOrEqual(decimal.Zero) {
		return CreditStatusPaid
	}
	for _, inst := range installments {
		if inst.Status == InstallmentStatusOverdue {
			return CreditStatusOverdue
		}
	}
	return CreditStatusActive
}
