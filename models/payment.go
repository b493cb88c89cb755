package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is an immutable receipt. Corrections are modelled as new
// compensating entries, never as edits.
type Payment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CreditId      int             `gorm:"index;not null" json:"credit_id"`
	BusinessId    string          `gorm:"index;size:64;not null" json:"business_id"`
	InstallmentId *int            `gorm:"index" json:"installment_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"index;not null" json:"payment_date"`
	PaymentMethod string          `gorm:"size:32" json:"payment_method"`
	Notes         string          `gorm:"type:text" json:"notes"`
	// Credit.RemainingBalance as of the instant this payment applied.
	RemainingBalanceAfter decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"remaining_balance_after"`
	RecordedBy            string          `gorm:"size:64" json:"recorded_by"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (p *Payment) BeforeUpdate(tx *gorm.DB) error {
	return ErrPaymentImmutable
}

func (p *Payment) BeforeDelete(tx *gorm.DB) error {
	return ErrPaymentImmutable
}

func GetPaymentsByCredit(ctx context.Context, businessId string, creditId int) ([]*Payment, error) {
	db := config.GetDB()
	var payments []*Payment
	err := db.WithContext(ctx).
		Where("business_id = ? AND credit_id = ?", businessId, creditId).
		Order("payment_date ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
