package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Operation names a store operation for error policy lookup and logging
type Operation string

const (
	OpFetchTransactions  Operation = "fetch transactions"
	OpFetchMonthlyStats  Operation = "fetch monthly stats"
	OpFetchCategoryStats Operation = "fetch category stats"
	OpFetchTrend         Operation = "fetch trend"
	OpAddTransaction     Operation = "add transaction"
	OpUpdateTransaction  Operation = "update transaction"
	OpRemoveTransaction  Operation = "remove transaction"
	OpFetchUser          Operation = "fetch user"
	OpFetchUserStats     Operation = "fetch user stats"
)

// ErrorPolicy decides what happens to a failed operation
type ErrorPolicy int

const (
	// Propagate records the message as the store's last error and returns the error
	Propagate ErrorPolicy = iota
	// Absorb logs the failure, keeps the previous state, and reports success
	Absorb
)

func (p ErrorPolicy) String() string {
	if p == Absorb {
		return "absorb"
	}
	return "propagate"
}

// Policies maps operations to their error policy. Operations missing from
// the map propagate.
type Policies map[Operation]ErrorPolicy

// DefaultPolicies surfaces failures of the transaction list and of
// mutations; the secondary widgets never block the list.
var DefaultPolicies = Policies{
	OpFetchTransactions:  Propagate,
	OpAddTransaction:     Propagate,
	OpUpdateTransaction:  Propagate,
	OpRemoveTransaction:  Propagate,
	OpFetchMonthlyStats:  Absorb,
	OpFetchCategoryStats: Absorb,
	OpFetchTrend:         Absorb,
	OpFetchUser:          Absorb,
	OpFetchUserStats:     Absorb,
}

// For returns the policy for op
func (p Policies) For(op Operation) ErrorPolicy {
	if policy, ok := p[op]; ok {
		return policy
	}
	return Propagate
}

// resolve applies the policy for op to err. record receives the message of
// propagated failures. Cancellation is never recorded: the caller that
// cancelled is no longer interested in the outcome.
func (p Policies) resolve(op Operation, err error, record func(string)) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		slog.Debug("Store operation cancelled", "operation", op)
		if p.For(op) == Absorb {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.For(op) == Absorb {
		slog.Warn("Store operation failed, keeping previous state", "operation", op, "error", err)
		return nil
	}

	slog.Error("Store operation failed", "operation", op, "error", err)
	record(err.Error())
	return fmt.Errorf("%s: %w", op, err)
}
