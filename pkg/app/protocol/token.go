package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// Token is the opaque fungible-token transfer capability the protocol
// relies on to move value between accounts. Its real implementation (a
// bridge to an external ledger, another chain's token contract, etc.)
// is out of scope for this engine; only the interface boundary is owned
// here.
type Token interface {
	Move(ctx context.Context, from, to common.Address, amt *amount.Amount) error
	BalanceOf(addr common.Address) *amount.Amount
}

// MemLedger is an in-memory Token implementation used by tests, the
// reference node binary, and local development. It covers the single
// concern a Token capability needs: move funds between two balances
// without overdrawing.
type MemLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*amount.Amount
}

func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[common.Address]*amount.Amount)}
}

func (l *MemLedger) balanceOf(addr common.Address) *amount.Amount {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return amount.New(0)
}

// Credit deposits funds into an account, used to seed test/dev balances;
// production deployments source balances from the real external ledger
// instead.
func (l *MemLedger) Credit(addr common.Address, amt *amount.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = amount.Add(l.balanceOf(addr), amt)
}

func (l *MemLedger) BalanceOf(addr common.Address) *amount.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(addr)
}

func (l *MemLedger) Move(_ context.Context, from, to common.Address, amt *amount.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amt.IsZero() {
		return nil
	}
	fromBal := l.balanceOf(from)
	if fromBal.Lt(amt) {
		return fmt.Errorf("protocol: insufficient balance for %s: have %s, need %s", from.Hex(), fromBal.String(), amt.String())
	}
	l.balances[from] = amount.Sub(fromBal, amt)
	l.balances[to] = amount.Add(l.balanceOf(to), amt)
	return nil
}

var _ Token = (*MemLedger)(nil)
