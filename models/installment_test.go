package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDeriveInstallmentStatus(t *testing.T) {
	due := date(2026, time.May, 10)
	before := date(2026, time.May, 9)
	after := date(2026, time.May, 11)
	scheduled := decimal.NewFromInt(1000)

	cases := []struct {
		name string
		paid decimal.Decimal
		now  time.Time
		want InstallmentStatus
	}{
		{"untouched before due", decimal.Zero, before, InstallmentStatusPending},
		{"untouched on due date", decimal.Zero, due, InstallmentStatusPending},
		{"untouched after due", decimal.Zero, after, InstallmentStatusOverdue},
		{"partial before due", decimal.NewFromInt(400), before, InstallmentStatusPartial},
		{"partial after due", decimal.NewFromInt(400), after, InstallmentStatusOverdue},
		{"paid exactly", decimal.NewFromInt(1000), before, InstallmentStatusPaid},
		{"paid after due stays paid", decimal.NewFromInt(1000), after, InstallmentStatusPaid},
		{"overpaid", decimal.NewFromInt(1200), after, InstallmentStatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveInstallmentStatus(tc.paid, scheduled, due, tc.now)
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestInstallmentOutstanding(t *testing.T) {
	inst := Installment{
		ScheduledAmount: decimal.NewFromInt(1000),
		PaidAmount:      decimal.NewFromInt(250),
	}
	if !inst.Outstanding().Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected 750, got %s", inst.Outstanding())
	}
}

func TestDeriveCreditStatus(t *testing.T) {
	installments := []Installment{
		{Status: InstallmentStatusPaid},
		{Status: InstallmentStatusPending},
	}

	if got := DeriveCreditStatus(CreditStatusActive, decimal.NewFromInt(500), installments); got != CreditStatusActive {
		t.Fatalf("expected active, got %s", got)
	}
	if got := DeriveCreditStatus(CreditStatusActive, decimal.Zero, installments); got != CreditStatusPaid {
		t.Fatalf("expected paid at zero balance, got %s", got)
	}

	withOverdue := append(installments, Installment{Status: InstallmentStatusOverdue})
	if got := DeriveCreditStatus(CreditStatusActive, decimal.NewFromInt(500), withOverdue); got != CreditStatusOverdue {
		t.Fatalf("expected overdue, got %s", got)
	}

	// Cancellation is terminal.
	if got := DeriveCreditStatus(CreditStatusCancelled, decimal.Zero, withOverdue); got != CreditStatusCancelled {
		t.Fatalf("expected cancelled to stay cancelled, got %s", got)
	}
}
