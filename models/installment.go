package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Installment struct {
	ID                int               `gorm:"primary_key" json:"id"`
	CreditId          int               `gorm:"index;not null;uniqueIndex:idx_installment_credit_number,priority:1" json:"credit_id"`
	BusinessId        string            `gorm:"index;size:64;not null" json:"business_id"`
	InstallmentNumber int               `gorm:"not null;uniqueIndex:idx_installment_credit_number,priority:2" json:"installment_number"`
	DueDate           time.Time         `gorm:"index;not null" json:"due_date"`
	ScheduledAmount   decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"scheduled_amount"`
	PaidAmount        decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	Status            InstallmentStatus `gorm:"type:enum('pending','partial','paid','overdue');default:'pending'" json:"status"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Outstanding is the amount still owed on this installment.
func (i *Installment) Outstanding() decimal.Decimal {
	return i.ScheduledAmount.Sub(i.PaidAmount)
}

// DeriveInstallmentStatus computes the status from paid versus scheduled and
// the due date. Paid always wins; an unpaid installment past its due date is
// overdue whether or not it carries a partial amount.
func DeriveInstallmentStatus(paid, scheduled decimal.Decimal, dueDate, now time.Time) InstallmentStatus {
	if paid.GreaterThanOrEqual(scheduled) {
		return InstallmentStatusPaid
	}
	if now.After(dueDate) {
		return InstallmentStatusOverdue
	}
	if paid.IsPositive() {
		return InstallmentStatusPartial
	}
	return InstallmentStatusPending
}

// Refresh rewrites the status in place from the current paid amount.
func (i *Installment) Refresh(now time.Time) {
	i.Status = DeriveInstallmentStatus(i.PaidAmount, i.ScheduledAmount, i.DueDate, now)
}
