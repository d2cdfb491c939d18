package host

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// AccountStore persists committed account state. Commit must apply all accounts
// or none of them.
type AccountStore interface {
	// Load returns the stored accounts among keys. Missing keys are absent from the map.
	Load(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*Account, error)
	// Commit writes the given accounts, purging the ones that are empty.
	Commit(ctx context.Context, accounts map[solana.PublicKey]*Account) error
	// AccountsByOwner lists the accounts owned by a program, ordered by key.
	AccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error)
}

// MemoryStore is an AccountStore backed by a map.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *MemoryStore) Load(_ context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[solana.PublicKey]*Account, len(keys))
	for _, key := range keys {
		if acct, ok := s.accounts[key]; ok {
			out[key] = acct.Clone()
		}
	}
	return out, nil
}

func (s *MemoryStore) Commit(_ context.Context, accounts map[solana.PublicKey]*Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, acct := range accounts {
		if acct.IsEmpty() {
			delete(s.accounts, key)
			continue
		}
		s.accounts[key] = acct.Clone()
	}
	return nil
}

func (s *MemoryStore) AccountsByOwner(_ context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []KeyedAccount
	for key, acct := range s.accounts {
		if acct.Owner.Equals(owner) {
			out = append(out, KeyedAccount{Key: key, Account: acct.Clone()})
		}
	}
	slices.SortFunc(out, func(a, b KeyedAccount) int {
		return bytes.Compare(a.Key[:], b.Key[:])
	})
	return out, nil
}
