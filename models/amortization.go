package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PlanLine is one computed installment of an amortization plan.
type PlanLine struct {
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	ScheduledAmount   decimal.Decimal `json:"scheduled_amount"`
}

// AmortizationPlan is the full flat-interest schedule for a credit.
type AmortizationPlan struct {
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalWithInterest decimal.Decimal `json:"total_with_interest"`
	InstallmentCount  int             `json:"installment_count"`
	EndDate           time.Time       `json:"end_date"`
	Lines             []PlanLine      `json:"lines"`
}

// InstallmentCount derives how many installments fit into the term. The term
// is measured in 30-day months, each month carrying PaymentsPerMonth
// installments; a started period owes a full installment.
func InstallmentCount(termDays int, frequency PaymentFrequency) int {
	ppm := frequency.PaymentsPerMonth()
	if termDays <= 0 || ppm == 0 {
		return 0
	}
	return (termDays*ppm + 29) / 30
}

// ComputePlan builds the flat-interest amortization schedule.
//
// The monthly rate is prorated to a per-installment rate, interest accrues on
// the full principal for every installment, and the total is split evenly at
// four decimal places. Any rounding remainder lands on the final installment
// so the lines always sum exactly to the total.
func ComputePlan(principal, monthlyRate decimal.Decimal, termDays int, frequency PaymentFrequency, startDate time.Time) (*AmortizationPlan, error) {
	if !principal.IsPositive() {
		return nil, errors.New("principal must be positive")
	}
	if monthlyRate.IsNegative() {
		return nil, errors.New("interest rate cannot be negative")
	}
	if termDays <= 0 {
		return nil, errors.New("term must be at least one day")
	}

	n := InstallmentCount(termDays, frequency)
	if n == 0 {
		return nil, errors.New("invalid payment frequency")
	}

	ppm := decimal.NewFromInt(int64(frequency.PaymentsPerMonth()))
	perInstallmentRate := monthlyRate.Div(decimal.NewFromInt(100)).Div(ppm)
	totalInterest := principal.Mul(perInstallmentRate).Mul(decimal.NewFromInt(int64(n))).Round(4)
	total := principal.Add(totalInterest)

	base := total.Div(decimal.NewFromInt(int64(n))).RoundDown(4)
	last := total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))

	gap := frequency.DayGap()
	lines := make([]PlanLine, 0, n)
	for i := 1; i <= n; i++ {
		amount := base
		if i == n {
			amount = last
		}
		lines = append(lines, PlanLine{
			InstallmentNumber: i,
			DueDate:           startDate.AddDate(0, 0, gap*i),
			ScheduledAmount:   amount,
		})
	}

	return &AmortizationPlan{
		Principal:         principal,
		InterestRate:      monthlyRate,
		TotalInterest:     totalInterest,
		TotalWithInterest: total,
		InstallmentCount:  n,
		EndDate:           lines[n-1].DueDate,
		Lines:             lines,
	}, nil
}
