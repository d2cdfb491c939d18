package host

import (
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/puzpuzpuz/xsync/v4"
)

// lockTable serializes transactions that declare overlapping account sets.
// Writable accounts are write-locked, the rest read-locked. Callers must pass
// keys in a global order so two transactions cannot deadlock.
type lockTable struct {
	locks *xsync.Map[solana.PublicKey, *sync.RWMutex]
}

func newLockTable() *lockTable {
	return &lockTable{locks: xsync.NewMap[solana.PublicKey, *sync.RWMutex]()}
}

func (t *lockTable) get(key solana.PublicKey) *sync.RWMutex {
	mu, _ := t.locks.LoadOrStore(key, &sync.RWMutex{})
	return mu
}

// acquire locks every key and returns the matching release function.
func (t *lockTable) acquire(sorted []solana.PublicKey, writable map[solana.PublicKey]bool) func() {
	held := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		mu := t.get(key)
		if writable[key] {
			mu.Lock()
			held = append(held, mu.Unlock)
		} else {
			mu.RLock()
			held = append(held, mu.RUnlock)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
}
