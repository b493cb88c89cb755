package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputePlan_WeeklyMonthTerm(t *testing.T) {
	// 1,000,000 at 10% monthly over 30 days, weekly collections:
	// 2.5% per week, 4 installments of 275,000 summing to 1,100,000.
	start := date(2026, time.January, 1)
	plan, err := ComputePlan(decimal.NewFromInt(1_000_000), decimal.NewFromInt(10), 30, PaymentFrequencyWeekly, start)
	if err != nil {
		t.Fatal(err)
	}

	if plan.InstallmentCount != 4 {
		t.Fatalf("expected 4 installments, got %d", plan.InstallmentCount)
	}
	if !plan.TotalInterest.Equal(decimal.NewFromInt(100_000)) {
		t.Fatalf("expected total interest 100000, got %s", plan.TotalInterest)
	}
	if !plan.TotalWithInterest.Equal(decimal.NewFromInt(1_100_000)) {
		t.Fatalf("expected total 1100000, got %s", plan.TotalWithInterest)
	}
	for i, line := range plan.Lines {
		if !line.ScheduledAmount.Equal(decimal.NewFromInt(275_000)) {
			t.Fatalf("installment %d: expected 275000, got %s", i+1, line.ScheduledAmount)
		}
		wantDue := start.AddDate(0, 0, 7*(i+1))
		if !line.DueDate.Equal(wantDue) {
			t.Fatalf("installment %d: expected due %s, got %s", i+1, wantDue, line.DueDate)
		}
	}
	if !plan.EndDate.Equal(start.AddDate(0, 0, 28)) {
		t.Fatalf("expected end date %s, got %s", start.AddDate(0, 0, 28), plan.EndDate)
	}
}

func TestComputePlan_LinesSumToTotal(t *testing.T) {
	cases := []struct {
		name      string
		principal int64
		rate      string
		termDays  int
		frequency PaymentFrequency
	}{
		{"daily small", 50_000, "5", 15, PaymentFrequencyDaily},
		{"weekly uneven", 333_333, "12.5", 45, PaymentFrequencyWeekly},
		{"biweekly", 1_000_000, "8", 60, PaymentFrequencyBiweekly},
		{"monthly year", 2_500_000, "10", 360, PaymentFrequencyMonthly},
		{"prime principal", 999_983, "7.77", 90, PaymentFrequencyWeekly},
	}

	start := date(2026, time.March, 15)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, _ := decimal.NewFromString(tc.rate)
			plan, err := ComputePlan(decimal.NewFromInt(tc.principal), rate, tc.termDays, tc.frequency, start)
			if err != nil {
				t.Fatal(err)
			}
			sum := decimal.Zero
			for _, line := range plan.Lines {
				sum = sum.Add(line.ScheduledAmount)
			}
			if !sum.Equal(plan.TotalWithInterest) {
				t.Fatalf("lines sum %s != total %s", sum, plan.TotalWithInterest)
			}
			if len(plan.Lines) != plan.InstallmentCount {
				t.Fatalf("line count %d != installment count %d", len(plan.Lines), plan.InstallmentCount)
			}
		})
	}
}

func TestComputePlan_RemainderLandsOnLastInstallment(t *testing.T) {
	// 100,000 + 10% = 110,000 over 3 biweekly slots does not divide evenly
	// at 4 decimal places.
	start := date(2026, time.June, 1)
	plan, err := ComputePlan(decimal.NewFromInt(100_000), decimal.NewFromInt(15), 45, PaymentFrequencyBiweekly, start)
	if err != nil {
		t.Fatal(err)
	}
	if plan.InstallmentCount != 3 {
		t.Fatalf("expected 3 installments, got %d", plan.InstallmentCount)
	}
	first := plan.Lines[0].ScheduledAmount
	last := plan.Lines[len(plan.Lines)-1].ScheduledAmount
	if !plan.Lines[1].ScheduledAmount.Equal(first) {
		t.Fatalf("non-final installments must be equal, got %s and %s", first, plan.Lines[1].ScheduledAmount)
	}
	if last.LessThan(first) {
		t.Fatalf("remainder must land on the final installment: first=%s last=%s", first, last)
	}
}

func TestComputePlan_ZeroRate(t *testing.T) {
	plan, err := ComputePlan(decimal.NewFromInt(120_000), decimal.Zero, 30, PaymentFrequencyMonthly, date(2026, time.January, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !plan.TotalInterest.IsZero() {
		t.Fatalf("expected zero interest, got %s", plan.TotalInterest)
	}
	if !plan.TotalWithInterest.Equal(decimal.NewFromInt(120_000)) {
		t.Fatalf("expected total equal to principal, got %s", plan.TotalWithInterest)
	}
}

func TestComputePlan_RejectsInvalidInput(t *testing.T) {
	start := date(2026, time.January, 1)
	if _, err := ComputePlan(decimal.Zero, decimal.NewFromInt(10), 30, PaymentFrequencyWeekly, start); err == nil {
		t.Fatal("expected error for zero principal")
	}
	if _, err := ComputePlan(decimal.NewFromInt(1000), decimal.NewFromInt(-1), 30, PaymentFrequencyWeekly, start); err == nil {
		t.Fatal("expected error for negative rate")
	}
	if _, err := ComputePlan(decimal.NewFromInt(1000), decimal.NewFromInt(10), 0, PaymentFrequencyWeekly, start); err == nil {
		t.Fatal("expected error for zero term")
	}
	if _, err := ComputePlan(decimal.NewFromInt(1000), decimal.NewFromInt(10), 30, PaymentFrequency("hourly"), start); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}

func TestInstallmentCount(t *testing.T) {
	cases := []struct {
		termDays  int
		frequency PaymentFrequency
		want      int
	}{
		{30, PaymentFrequencyDaily, 30},
		{30, PaymentFrequencyWeekly, 4},
		{30, PaymentFrequencyBiweekly, 2},
		{30, PaymentFrequencyMonthly, 1},
		{45, PaymentFrequencyBiweekly, 3},
		{31, PaymentFrequencyMonthly, 2},
		{1, PaymentFrequencyDaily, 1},
		{7, PaymentFrequencyWeekly, 1},
	}
	for _, tc := range cases {
		got := InstallmentCount(tc.termDays, tc.frequency)
		if got != tc.want {
			t.Errorf("InstallmentCount(%d, %s) = %d, want %d", tc.termDays, tc.frequency, got, tc.want)
		}
	}
}
