package models

import "errors"

// Business-rule rejections. These roll the enclosing transaction back cleanly
// and are surfaced to the caller as typed, user-facing errors.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrOverPayment            = errors.New("payment exceeds remaining balance")
	ErrAlreadySettled         = errors.New("credit is already fully paid")
	ErrScheduleLocked         = errors.New("schedule has collected payments; installment count cannot change")
	ErrAmountBelowPaid        = errors.New("scheduled amount is below the amount already paid")
	ErrCrossBusinessReference = errors.New("client belongs to a different business")
	ErrNegativeBalance        = errors.New("collected payments exceed the new schedule total")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidInstallment     = errors.New("installment does not belong to this credit")
	ErrOverInstallmentPayment = errors.New("payment exceeds the installment's outstanding amount")
	ErrFuturePaymentDate      = errors.New("payment date cannot be in the future")
	ErrCreditDeletion         = errors.New("credits cannot be deleted; cancel them instead")
	ErrPaymentImmutable       = errors.New("payments are immutable once recorded")
	ErrMovementImmutable      = errors.New("cash movements are immutable once recorded")
)

// Invariant violations. These indicate a programming fault, not bad input;
// they are logged loudly and roll the transaction back.
var ErrUnappliedRemainder = errors.New("internal: payment distribution left an unapplied remainder")
