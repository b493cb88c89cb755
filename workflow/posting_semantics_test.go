package workflow

import (
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/loans_backend/models"
	"github.com/shopspring/decimal"
)

// fakeLedger mirrors the posting transaction's shape: a per-business lock
// around a read-check-write of the balance, appending a movement row with the
// resulting snapshot. It validates that serialized posting preserves the
// replay and non-negative invariants under concurrency.
type fakeLedger struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	movements []*models.CashMovement
}

func (l *fakeLedger) post(movementType models.MovementType, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	newBalance := l.balance
	if movementType.IsIncome() {
		newBalance = newBalance.Add(amount)
	} else {
		newBalance = newBalance.Sub(amount)
	}
	if newBalance.IsNegative() {
		return models.ErrInsufficientFunds
	}
	l.movements = append(l.movements, &models.CashMovement{
		MovementType: movementType,
		Amount:       amount,
		BalanceAfter: newBalance,
	})
	l.balance = newBalance
	return nil
}

func TestConcurrentPosting_PreservesLedgerInvariants(t *testing.T) {
	ledger := &fakeLedger{balance: decimal.NewFromInt(1_000_000)}
	ledger.movements = append(ledger.movements, &models.CashMovement{
		MovementType: models.MovementTypeInitialCapital,
		Amount:       decimal.NewFromInt(1_000_000),
		BalanceAfter: decimal.NewFromInt(1_000_000),
	})

	var wg sync.WaitGroup
	var rejected int64
	var rejectedMu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = ledger.post(models.MovementTypeLoanDisbursement, decimal.NewFromInt(90_000))
			} else {
				err = ledger.post(models.MovementTypePaymentReceived, decimal.NewFromInt(30_000))
			}
			if err == models.ErrInsufficientFunds {
				rejectedMu.Lock()
				rejected++
				rejectedMu.Unlock()
			} else if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if ledger.balance.IsNegative() {
		t.Fatalf("balance went negative: %s", ledger.balance)
	}
	if !models.ReplayBalance(ledger.movements).Equal(ledger.balance) {
		t.Fatalf("replay %s != balance %s", models.ReplayBalance(ledger.movements), ledger.balance)
	}
	// Every snapshot chains from the previous one.
	for i := 1; i < len(ledger.movements); i++ {
		prev := ledger.movements[i-1].BalanceAfter
		want := prev.Add(ledger.movements[i].SignedAmount())
		if !ledger.movements[i].BalanceAfter.Equal(want) {
			t.Fatalf("movement %d: snapshot %s, want %s", i, ledger.movements[i].BalanceAfter, want)
		}
	}
}

func TestRejectedPostingLeavesStateUnchanged(t *testing.T) {
	ledger := &fakeLedger{balance: decimal.NewFromInt(100)}

	if err := ledger.post(models.MovementTypeWithdrawal, decimal.NewFromInt(500)); err != models.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !ledger.balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed on rejected posting: %s", ledger.balance)
	}
	if len(ledger.movements) != 0 {
		t.Fatalf("movement appended on rejected posting")
	}
}
