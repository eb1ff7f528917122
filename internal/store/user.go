package store

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/budget-sync/internal/gateway"
)

// UserGateway is the subset of the remote API the user store depends on
type UserGateway interface {
	CurrentUser(ctx context.Context) (*gateway.User, error)
	UserStats(ctx context.Context) (*gateway.UserStats, error)
}

// UserStore caches the current user and their lifetime totals
type UserStore struct {
	gateway  UserGateway
	policies Policies

	mu    sync.RWMutex
	user  *gateway.User
	stats gateway.UserStats
	busy  int
}

// NewUserStore creates a UserStore with the default error policies
func NewUserStore(gw UserGateway) *UserStore {
	return &UserStore{gateway: gw, policies: DefaultPolicies}
}

// FetchUser loads the current user
func (u *UserStore) FetchUser(ctx context.Context) error {
	u.mu.Lock()
	u.busy++
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.busy--
		u.mu.Unlock()
	}()

	user, err := u.gateway.CurrentUser(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		u.mu.Lock()
		u.user = user
		u.mu.Unlock()
	}
	return u.policies.resolve(OpFetchUser, err, func(string) {})
}

// FetchStats loads the lifetime totals
func (u *UserStore) FetchStats(ctx context.Context) error {
	stats, err := u.gateway.UserStats(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		u.mu.Lock()
		u.stats = *stats
		u.mu.Unlock()
	}
	return u.policies.resolve(OpFetchUserStats, err, func(string) {})
}

// Init loads the user and the totals concurrently
func (u *UserStore) Init(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return u.FetchUser(ctx) })
	g.Go(func() error { return u.FetchStats(ctx) })
	return g.Wait()
}

// User returns the cached user, or nil before the first successful fetch
func (u *UserStore) User() *gateway.User {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.user == nil {
		return nil
	}
	user := *u.user
	return &user
}

// Stats returns the cached totals
func (u *UserStore) Stats() gateway.UserStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.stats
}

// Loading reports whether the user is being fetched
func (u *UserStore) Loading() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.busy > 0
}
