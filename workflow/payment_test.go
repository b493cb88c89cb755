package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the allocation
// semantics the posting transaction relies on; full DB integration tests need
// an environment that can run MySQL + Redis.

func testDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSchedule() []models.Installment {
	amount := decimal.NewFromInt(275_000)
	installments := make([]models.Installment, 4)
	for i := range installments {
		installments[i] = models.Installment{
			ID:                i + 1,
			InstallmentNumber: i + 1,
			DueDate:           testDate(2026, time.January, 8+7*i),
			ScheduledAmount:   amount,
			PaidAmount:        decimal.Zero,
			Status:            models.InstallmentStatusPending,
		}
	}
	return installments
}

func TestDistributePayment_OneFullInstallment(t *testing.T) {
	installments := testSchedule()
	paymentDate := testDate(2026, time.January, 5)

	applied, remainder := distributePayment(installments, decimal.NewFromInt(275_000), paymentDate)

	if !remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", remainder)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("expected only the first installment touched, got %v", applied)
	}
	if installments[0].Status != models.InstallmentStatusPaid {
		t.Fatalf("first installment should be paid, got %s", installments[0].Status)
	}
	for _, inst := range installments[1:] {
		if inst.Status != models.InstallmentStatusPending || !inst.PaidAmount.IsZero() {
			t.Fatalf("installment %d should be untouched", inst.InstallmentNumber)
		}
	}
}

func TestDistributePayment_OverdueFirst(t *testing.T) {
	installments := testSchedule()
	// Paying after the second due date: rows 1 and 2 are overdue and must be
	// filled before any future-dated row, oldest first.
	paymentDate := testDate(2026, time.January, 20)

	applied, remainder := distributePayment(installments, decimal.NewFromInt(300_000), paymentDate)

	if !remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", remainder)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Fatalf("expected installments 1 then 2, got %v", applied)
	}
	if installments[0].Status != models.InstallmentStatusPaid {
		t.Fatalf("installment 1 should be paid, got %s", installments[0].Status)
	}
	// Partial on an overdue installment is still overdue.
	if installments[1].Status != models.InstallmentStatusOverdue {
		t.Fatalf("installment 2 should stay overdue, got %s", installments[1].Status)
	}
	if !installments[1].PaidAmount.Equal(decimal.NewFromInt(25_000)) {
		t.Fatalf("installment 2 paid amount = %s, want 25000", installments[1].PaidAmount)
	}
}

func TestDistributePayment_Conservation(t *testing.T) {
	amounts := []int64{1, 137_500, 275_000, 500_000, 1_100_000}
	for _, a := range amounts {
		installments := testSchedule()
		amount := decimal.NewFromInt(a)

		_, remainder := distributePayment(installments, amount, testDate(2026, time.February, 10))

		appliedTotal := decimal.Zero
		for _, inst := range installments {
			appliedTotal = appliedTotal.Add(inst.PaidAmount)
		}
		if !appliedTotal.Add(remainder).Equal(amount) {
			t.Fatalf("amount %d: applied %s + remainder %s != payment", a, appliedTotal, remainder)
		}
		if !remainder.IsZero() {
			t.Fatalf("amount %d: remainder %s with capacity available", a, remainder)
		}
	}
}

func TestDistributePayment_SkipsSettledRows(t *testing.T) {
	installments := testSchedule()
	installments[0].PaidAmount = installments[0].ScheduledAmount
	installments[0].Status = models.InstallmentStatusPaid

	applied, _ := distributePayment(installments, decimal.NewFromInt(100_000), testDate(2026, time.January, 5))

	if len(applied) != 1 || applied[0] != 2 {
		t.Fatalf("expected allocation to skip the settled row, got %v", applied)
	}
}

func TestDistributePayment_ExcessReportsRemainder(t *testing.T) {
	installments := testSchedule()
	total := decimal.NewFromInt(1_100_000)
	excess := total.Add(decimal.NewFromInt(5_000))

	_, remainder := distributePayment(installments, excess, testDate(2026, time.March, 1))

	if !remainder.Equal(decimal.NewFromInt(5_000)) {
		t.Fatalf("expected remainder 5000 surfaced, got %s", remainder)
	}
}

func TestApplyToInstallment(t *testing.T) {
	paymentDate := testDate(2026, time.January, 5)

	installments := testSchedule()
	id, err := applyToInstallment(installments, 3, decimal.NewFromInt(100_000), paymentDate)
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Fatalf("expected installment 3, got %d", id)
	}
	if installments[2].Status != models.InstallmentStatusPartial {
		t.Fatalf("expected partial, got %s", installments[2].Status)
	}

	if _, err := applyToInstallment(installments, 99, decimal.NewFromInt(1), paymentDate); err != models.ErrInvalidInstallment {
		t.Fatalf("expected ErrInvalidInstallment, got %v", err)
	}
	if _, err := applyToInstallment(installments, 3, decimal.NewFromInt(200_000), paymentDate); err != models.ErrOverInstallmentPayment {
		t.Fatalf("expected ErrOverInstallmentPayment, got %v", err)
	}
}
