package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/shopspring/decimal"
)

func intPtr(i int) *int { return &i }

func lockedSchedule() []models.Installment {
	return []models.Installment{
		{ID: 1, InstallmentNumber: 1, DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000), PaidAmount: decimal.NewFromInt(275_000), Status: models.InstallmentStatusPaid},
		{ID: 2, InstallmentNumber: 2, DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(275_000), PaidAmount: decimal.NewFromInt(100_000), Status: models.InstallmentStatusPartial},
		{ID: 3, InstallmentNumber: 3, DueDate: testDate(2026, time.January, 22), ScheduledAmount: decimal.NewFromInt(275_000), PaidAmount: decimal.Zero, Status: models.InstallmentStatusPending},
	}
}

func TestRewriteLockedSchedule_CountMustMatch(t *testing.T) {
	installments := lockedSchedule()
	lines := []ScheduleLine{
		{InstallmentId: intPtr(1), DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(275_000)},
	}

	if err := rewriteLockedSchedule(installments, lines, testDate(2026, time.January, 10)); err != models.ErrScheduleLocked {
		t.Fatalf("expected ErrScheduleLocked, got %v", err)
	}
}

func TestRewriteLockedSchedule_RejectsAmountBelowPaid(t *testing.T) {
	installments := lockedSchedule()
	lines := []ScheduleLine{
		{InstallmentId: intPtr(1), DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(50_000)},
		{InstallmentId: intPtr(3), DueDate: testDate(2026, time.January, 22), ScheduledAmount: decimal.NewFromInt(275_000)},
	}

	if err := rewriteLockedSchedule(installments, lines, testDate(2026, time.January, 10)); err != models.ErrAmountBelowPaid {
		t.Fatalf("expected ErrAmountBelowPaid, got %v", err)
	}
}

func TestRewriteLockedSchedule_RejectsUnknownInstallment(t *testing.T) {
	installments := lockedSchedule()
	lines := []ScheduleLine{
		{InstallmentId: intPtr(1), DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(99), DueDate: testDate(2026, time.January, 22), ScheduledAmount: decimal.NewFromInt(275_000)},
	}

	if err := rewriteLockedSchedule(installments, lines, testDate(2026, time.January, 10)); err != models.ErrInvalidInstallment {
		t.Fatalf("expected ErrInvalidInstallment, got %v", err)
	}

	lines[2].InstallmentId = nil
	if err := rewriteLockedSchedule(installments, lines, testDate(2026, time.January, 10)); err != models.ErrInvalidInstallment {
		t.Fatalf("expected ErrInvalidInstallment for missing id, got %v", err)
	}
}

func TestRewriteLockedSchedule_RejectsDuplicateInstallment(t *testing.T) {
	installments := lockedSchedule()
	// Three lines, but two of them name installment 2: the count check alone
	// would pass while installment 3 is never referenced.
	lines := []ScheduleLine{
		{InstallmentId: intPtr(1), DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(275_000)},
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 22), ScheduledAmount: decimal.NewFromInt(999_999)},
	}

	if err := rewriteLockedSchedule(installments, lines, testDate(2026, time.January, 10)); err != models.ErrInvalidInstallment {
		t.Fatalf("expected ErrInvalidInstallment for duplicate id, got %v", err)
	}
	if !installments[2].ScheduledAmount.Equal(decimal.NewFromInt(275_000)) {
		t.Fatalf("installment 3 must stay untouched, got %s", installments[2].ScheduledAmount)
	}
}

func TestRewriteLockedSchedule_AdjustsAmountsAndStatuses(t *testing.T) {
	installments := lockedSchedule()
	now := testDate(2026, time.January, 10)
	lines := []ScheduleLine{
		{InstallmentId: intPtr(1), DueDate: testDate(2026, time.January, 8), ScheduledAmount: decimal.NewFromInt(275_000)},
		// Reducing to exactly the collected amount settles the row.
		{InstallmentId: intPtr(2), DueDate: testDate(2026, time.January, 15), ScheduledAmount: decimal.NewFromInt(100_000)},
		// Stretching the tail.
		{InstallmentId: intPtr(3), DueDate: testDate(2026, time.February, 22), ScheduledAmount: decimal.NewFromInt(450_000)},
	}

	if err := rewriteLockedSchedule(installments, lines, now); err != nil {
		t.Fatal(err)
	}
	if installments[1].Status != models.InstallmentStatusPaid {
		t.Fatalf("installment 2 should settle, got %s", installments[1].Status)
	}
	if !installments[2].ScheduledAmount.Equal(decimal.NewFromInt(450_000)) {
		t.Fatalf("installment 3 amount not applied: %s", installments[2].ScheduledAmount)
	}
	if installments[2].Status != models.InstallmentStatusPending {
		t.Fatalf("installment 3 should stay pending, got %s", installments[2].Status)
	}

	totalScheduled := decimal.Zero
	totalPaid := decimal.Zero
	for _, inst := range installments {
		totalScheduled = totalScheduled.Add(inst.ScheduledAmount)
		totalPaid = totalPaid.Add(inst.PaidAmount)
	}
	if !totalScheduled.Sub(totalPaid).Equal(decimal.NewFromInt(450_000)) {
		t.Fatalf("remaining balance after rewrite = %s, want 450000", totalScheduled.Sub(totalPaid))
	}
}
