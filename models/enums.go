package models

import "errors"

type PaymentFrequency string

const (
	PaymentFrequencyDaily    PaymentFrequency = "daily"
	PaymentFrequencyWeekly   PaymentFrequency = "weekly"
	PaymentFrequencyBiweekly PaymentFrequency = "biweekly"
	PaymentFrequencyMonthly  PaymentFrequency = "monthly"
)

// DayGap is the number of days between consecutive installments.
func (f PaymentFrequency) DayGap() int {
	switch f {
	case PaymentFrequencyDaily:
		return 1
	case PaymentFrequencyWeekly:
		return 7
	case PaymentFrequencyBiweekly:
		return 15
	case PaymentFrequencyMonthly:
		return 30
	}
	return 0
}

// PaymentsPerMonth prorates the monthly interest rate down to one installment.
func (f PaymentFrequency) PaymentsPerMonth() int {
	switch f {
	case PaymentFrequencyDaily:
		return 30
	case PaymentFrequencyWeekly:
		return 4
	case PaymentFrequencyBiweekly:
		return 2
	case PaymentFrequencyMonthly:
		return 1
	}
	return 0
}

func ParsePaymentFrequency(s string) (PaymentFrequency, error) {
	switch s {
	case "daily":
		return PaymentFrequencyDaily, nil
	case "weekly":
		return PaymentFrequencyWeekly, nil
	case "biweekly":
		return PaymentFrequencyBiweekly, nil
	case "monthly":
		return PaymentFrequencyMonthly, nil
	}
	return "", errors.New("invalid payment frequency")
}

type CreditStatus string

const (
	CreditStatusActive    CreditStatus = "active"
	CreditStatusPaid      CreditStatus = "paid"
	CreditStatusOverdue   CreditStatus = "overdue"
	CreditStatusCancelled CreditStatus = "cancelled"
)

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPartial InstallmentStatus = "partial"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

type MovementType string

const (
	MovementTypeInitialCapital   MovementType = "initial_capital"
	MovementTypeCapitalInjection MovementType = "capital_injection"
	MovementTypeWithdrawal       MovementType = "withdrawal"
	MovementTypeLoanDisbursement MovementType = "loan_disbursement"
	MovementTypePaymentReceived  MovementType = "payment_received"
	MovementTypeInterestEarned   MovementType = "interest_earned"
)

// IsIncome classifies a movement for the running balance:
// income adds to the business balance, expense subtracts from it.
func (t MovementType) IsIncome() bool {
	switch t {
	case MovementTypeInitialCapital, MovementTypeCapitalInjection,
		MovementTypePaymentReceived, MovementTypeInterestEarned:
		return true
	}
	return false
}

func (t MovementType) IsExpense() bool {
	switch t {
	case MovementTypeWithdrawal, MovementTypeLoanDisbursement:
		return true
	}
	return false
}

func ParseMovementType(s string) (MovementType, error) {
	switch MovementType(s) {
	case MovementTypeInitialCapital, MovementTypeCapitalInjection, MovementTypeWithdrawal,
		MovementTypeLoanDisbursement, MovementTypePaymentReceived, MovementTypeInterestEarned:
		return MovementType(s), nil
	}
	return "", errors.New("invalid movement type")
}
