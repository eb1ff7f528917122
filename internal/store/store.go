// Package store keeps a local cache of transactions and server-derived
// statistics consistent across overlapping operations.
//
// Every slice of state is replaced wholesale by the operation that fetched
// it. Concurrent writers therefore follow last-write-wins per slice: a
// reader may see a stale slice until the next refresh, never a torn one.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/budget-sync/internal/gateway"
)

const (
	// RefreshLimit caps the transaction list fetched by refreshes
	RefreshLimit = 50
	// DefaultTrendDays is the trend window when none is given
	DefaultTrendDays = 7
	// DefaultRecent is the size of the recent-transactions view
	DefaultRecent = 10
)

// ErrInvalidTransaction is returned before any network call for malformed input
var ErrInvalidTransaction = errors.New("invalid transaction")

// Gateway is the subset of the remote API the store depends on
type Gateway interface {
	ListTransactions(ctx context.Context, q gateway.TransactionQuery) ([]gateway.Transaction, error)
	CreateTransaction(ctx context.Context, t gateway.NewTransaction) (*gateway.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, u gateway.TransactionUpdate) (*gateway.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	MonthlyStats(ctx context.Context, p gateway.Period) (*gateway.MonthlyStats, error)
	CategoryStats(ctx context.Context, kind gateway.Kind, p gateway.Period) ([]gateway.CategoryStat, error)
	Trend(ctx context.Context, days int) (*gateway.TrendSeries, error)
}

// State is a snapshot of the store
type State struct {
	Transactions  []gateway.Transaction
	MonthlyStats  gateway.MonthlyStats
	CategoryStats []gateway.CategoryStat
	Trend         gateway.TrendSeries
	Loading       bool
	LastError     string
}

// Store caches transactions and derived aggregates for one session
type Store struct {
	gateway  Gateway
	policies Policies

	mu    sync.RWMutex
	state State
	busy  int

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// NewStore creates a Store with the default error policies
func NewStore(gw Gateway) *Store {
	return NewStoreWithPolicies(gw, DefaultPolicies)
}

// NewStoreWithPolicies creates a Store with custom error policies
func NewStoreWithPolicies(gw Gateway, policies Policies) *Store {
	return &Store{
		gateway:  gw,
		policies: policies,
		state: State{
			Transactions:  []gateway.Transaction{},
			CategoryStats: []gateway.CategoryStat{},
			Trend: gateway.TrendSeries{
				Dates:   []string{},
				Expense: []decimal.Decimal{},
				Income:  []decimal.Decimal{},
			},
		},
		subs: make(map[int]chan struct{}),
	}
}

// FetchTransactions replaces the cached list with the remote result. On
// failure the previous list is kept and the error is recorded.
func (s *Store) FetchTransactions(ctx context.Context, q gateway.TransactionQuery) error {
	done := s.begin()
	defer done()
	s.setError("")

	txs, err := s.gateway.ListTransactions(ctx, q)
	if err == nil {
		err = s.commit(ctx, func(st *State) {
			st.Transactions = txs
		})
	}
	return s.resolve(OpFetchTransactions, err)
}

// FetchMonthlyStats replaces the monthly summary. A zero period means the current month.
func (s *Store) FetchMonthlyStats(ctx context.Context, p gateway.Period) error {
	stats, err := s.gateway.MonthlyStats(ctx, p)
	if err == nil {
		err = s.commit(ctx, func(st *State) {
			st.MonthlyStats = *stats
		})
	}
	return s.resolve(OpFetchMonthlyStats, err)
}

// FetchCategoryStats replaces the category breakdown. kind defaults to expense.
func (s *Store) FetchCategoryStats(ctx context.Context, kind gateway.Kind, p gateway.Period) error {
	if kind == "" {
		kind = gateway.Expense
	}
	stats, err := s.gateway.CategoryStats(ctx, kind, p)
	if err == nil {
		err = s.commit(ctx, func(st *State) {
			st.CategoryStats = stats
		})
	}
	return s.resolve(OpFetchCategoryStats, err)
}

// FetchTrendData replaces the trend series for the last days days (default 7)
func (s *Store) FetchTrendData(ctx context.Context, days int) error {
	if days <= 0 {
		days = DefaultTrendDays
	}
	trend, err := s.gateway.Trend(ctx, days)
	if err == nil {
		err = s.commit(ctx, func(st *State) {
			st.Trend = *trend
		})
	}
	return s.resolve(OpFetchTrend, err)
}

// AddTransaction creates a transaction and then refreshes everything, since
// a new entry can move every aggregate. Refresh failures do not fail the add.
func (s *Store) AddTransaction(ctx context.Context, data gateway.NewTransaction) (*gateway.Transaction, error) {
	done := s.begin()
	defer done()

	if err := validateNew(data); err != nil {
		return nil, s.resolve(OpAddTransaction, err)
	}

	created, err := s.gateway.CreateTransaction(ctx, data)
	if err != nil {
		return nil, s.resolve(OpAddTransaction, err)
	}

	s.refresh(ctx)
	return created, nil
}

// UpdateTransaction applies a partial update and then refreshes everything
func (s *Store) UpdateTransaction(ctx context.Context, id int64, patch gateway.TransactionUpdate) (*gateway.Transaction, error) {
	done := s.begin()
	defer done()

	if err := validateUpdate(patch); err != nil {
		return nil, s.resolve(OpUpdateTransaction, err)
	}

	updated, err := s.gateway.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return nil, s.resolve(OpUpdateTransaction, err)
	}

	s.refresh(ctx)
	return updated, nil
}

// RemoveTransaction deletes a transaction, drops it from the cached list,
// and re-fetches the monthly summary. Category and trend stay as they are
// until the next full refresh.
func (s *Store) RemoveTransaction(ctx context.Context, id int64) error {
	if err := s.gateway.DeleteTransaction(ctx, id); err != nil {
		return s.resolve(OpRemoveTransaction, err)
	}

	// The delete is committed remotely, so the local patch applies even if ctx is done.
	s.mu.Lock()
	kept := make([]gateway.Transaction, 0, len(s.state.Transactions))
	for _, t := range s.state.Transactions {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.state.Transactions = kept
	s.mu.Unlock()
	s.notify()

	if err := s.FetchMonthlyStats(ctx, gateway.Period{}); err != nil {
		slog.Warn("Monthly stats are stale after delete", "id", id, "error", err)
	}
	return nil
}

// Init runs the four fetches one after another. Each step runs even when
// an earlier one failed.
func (s *Store) Init(ctx context.Context) {
	done := s.begin()
	defer done()

	if err := s.FetchTransactions(ctx, gateway.TransactionQuery{Limit: RefreshLimit}); err != nil {
		slog.Warn("Init: transactions unavailable", "error", err)
	}
	if err := s.FetchMonthlyStats(ctx, gateway.Period{}); err != nil {
		slog.Warn("Init: monthly stats unavailable", "error", err)
	}
	if err := s.FetchCategoryStats(ctx, gateway.Expense, gateway.Period{}); err != nil {
		slog.Warn("Init: category stats unavailable", "error", err)
	}
	if err := s.FetchTrendData(ctx, DefaultTrendDays); err != nil {
		slog.Warn("Init: trend unavailable", "error", err)
	}
}

// RefreshAll runs the four fetches concurrently while the store is busy
func (s *Store) RefreshAll(ctx context.Context) {
	done := s.begin()
	defer done()
	s.refresh(ctx)
}

// refresh fetches the capped list and all aggregates concurrently and
// waits for every one of them to settle.
func (s *Store) refresh(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		return s.FetchTransactions(ctx, gateway.TransactionQuery{Limit: RefreshLimit})
	})
	g.Go(func() error {
		return s.FetchMonthlyStats(ctx, gateway.Period{})
	})
	g.Go(func() error {
		return s.FetchCategoryStats(ctx, gateway.Expense, gateway.Period{})
	})
	g.Go(func() error {
		return s.FetchTrendData(ctx, DefaultTrendDays)
	})
	if err := g.Wait(); err != nil {
		slog.Warn("Refresh incomplete", "error", err)
	}
}

// State returns a copy of the current state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.Transactions = append([]gateway.Transaction{}, s.state.Transactions...)
	st.CategoryStats = append([]gateway.CategoryStat{}, s.state.CategoryStats...)
	st.Trend = gateway.TrendSeries{
		Dates:   append([]string{}, s.state.Trend.Dates...),
		Expense: append([]decimal.Decimal{}, s.state.Trend.Expense...),
		Income:  append([]decimal.Decimal{}, s.state.Trend.Income...),
	}
	st.Loading = s.busy > 0
	return st
}

// Transactions returns a copy of the cached list
func (s *Store) Transactions() []gateway.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]gateway.Transaction{}, s.state.Transactions...)
}

// Recent returns up to n of the most recent cached transactions (default 10)
func (s *Store) Recent(n int) []gateway.Transaction {
	if n <= 0 {
		n = DefaultRecent
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.state.Transactions) {
		n = len(s.state.Transactions)
	}
	return append([]gateway.Transaction{}, s.state.Transactions[:n]...)
}

// HasTransactions reports whether the cached list is non-empty
func (s *Store) HasTransactions() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Transactions) > 0
}

// Loading reports whether any busy operation is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy > 0
}

// LastError returns the message of the last propagated failure, if any
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastError
}

// Subscribe returns a channel signalled after every state change. Signals
// are coalesced; call State to read. The returned func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin marks the store busy; the returned func clears the mark
func (s *Store) begin() func() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
	s.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.busy--
			s.mu.Unlock()
			s.notify()
		})
	}
}

// commit applies a complete slice update unless ctx is done, in which case
// the late response is dropped.
func (s *Store) commit(ctx context.Context, apply func(st *State)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	apply(&s.state)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	changed := s.state.LastError != msg
	s.state.LastError = msg
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) resolve(op Operation, err error) error {
	return s.policies.resolve(op, err, s.setError)
}

func validateNew(t gateway.NewTransaction) error {
	var problems []string
	if !t.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("kind %q must be income or expense", t.Kind))
	}
	if !t.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if strings.TrimSpace(t.Category) == "" {
		problems = append(problems, "category is required")
	}
	if t.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if t.Source != "" && !t.Source.Valid() {
		problems = append(problems, fmt.Sprintf("unknown source %q", t.Source))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, strings.Join(problems, "; "))
	}
	return nil
}

func validateUpdate(u gateway.TransactionUpdate) error {
	var problems []string
	if u.Kind != nil && !u.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("kind %q must be income or expense", *u.Kind))
	}
	if u.Amount != nil && !u.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if u.Category != nil && strings.TrimSpace(*u.Category) == "" {
		problems = append(problems, "category cannot be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, strings.Join(problems, "; "))
	}
	return nil
}
