package market

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// ValidityEscrow tracks, per account, how much of a dynamic-sell's
// proceeds should be paid out depending on whether the market eventually
// resolves valid or invalid.
type ValidityEscrow struct {
	claimableIfValid   map[common.Address]*amount.Amount
	claimableIfInvalid map[common.Address]*amount.Amount
}

func newValidityEscrow() *ValidityEscrow {
	return &ValidityEscrow{
		claimableIfValid:   make(map[common.Address]*amount.Amount),
		claimableIfInvalid: make(map[common.Address]*amount.Amount),
	}
}

// GetOwed returns what `addr` is owed by the escrow, selecting the valid
// or invalid ledger depending on how the market finalized.
func (e *ValidityEscrow) GetOwed(addr common.Address, valid bool) *amount.Amount {
	var ledger map[common.Address]*amount.Amount
	if valid {
		ledger = e.claimableIfValid
	} else {
		ledger = e.claimableIfInvalid
	}
	if v, ok := ledger[addr]; ok {
		return v
	}
	return amount.New(0)
}

// Update records the outcome of one dynamic-sell fill: sharesFilled units
// sold at avgSellPrice by a seller whose average purchase price for those
// shares was avgBuyPrice. If the sale cleared above the original buy price, the
// spread is owed back only if the market resolves valid (the seller is
// giving up upside); if it cleared below, the spread is owed back only if
// the market resolves invalid (the seller is giving up a refund).
func (e *ValidityEscrow) Update(addr common.Address, sharesFilled *amount.Amount, avgSellPrice, avgBuyPrice uint64) {
	switch {
	case avgSellPrice > avgBuyPrice:
		delta := amount.Mul(sharesFilled, amount.New(avgSellPrice-avgBuyPrice))
		e.claimableIfValid[addr] = amount.Add(e.GetOwed(addr, true), delta)
	case avgBuyPrice > avgSellPrice:
		delta := amount.Mul(sharesFilled, amount.New(avgBuyPrice-avgSellPrice))
		e.claimableIfInvalid[addr] = amount.Add(e.GetOwed(addr, false), delta)
	}
}
