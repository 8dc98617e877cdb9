package memstore

import (
	"context"
	"sync"

	"github.com/vaxsched/vaccine-scheduler/internal/auth"
	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

type acctKey struct {
	role     scheduler.Role
	username string
}

// Accounts is an in-memory auth.Repository.
type Accounts struct {
	mu sync.Mutex
	m  map[acctKey]auth.Account
}

func NewAccounts() *Accounts {
	return &Accounts{m: map[acctKey]auth.Account{}}
}

func (a *Accounts) Create(ctx context.Context, acct auth.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := acctKey{role: acct.Role, username: acct.Username}
	if _, ok := a.m[key]; ok {
		return auth.ErrUsernameTaken
	}
	a.m[key] = acct
	return nil
}

func (a *Accounts) Find(ctx context.Context, role scheduler.Role, username string) (*auth.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acct, ok := a.m[acctKey{role: role, username: username}]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return &acct, nil
}
