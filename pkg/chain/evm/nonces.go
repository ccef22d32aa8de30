package evm

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UsedNonces remembers EIP-3009 nonces per payer until their authorization expires
type UsedNonces struct {
	mu   sync.Mutex
	seen map[string]time.Time // key: "from:nonce", value: validBefore
}

// NewUsedNonces creates an empty nonce ledger
func NewUsedNonces() *UsedNonces {
	return &UsedNonces{seen: make(map[string]time.Time)}
}

// Claim records nonce for from and reports whether it was still unused.
// Entries whose authorization has expired are dropped first.
func (u *UsedNonces) Claim(from common.Address, nonce string, validBefore, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	for key, expires := range u.seen {
		if !now.Before(expires) {
			delete(u.seen, key)
		}
	}

	key := from.Hex() + ":" + strings.ToLower(nonce)
	if _, used := u.seen[key]; used {
		return false
	}
	u.seen[key] = validBefore
	return true
}

// Len returns the number of nonces still tracked
func (u *UsedNonces) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}
