// Package order defines the Order type shared by every outcome orderbook.
package order

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// ID uniquely identifies an order within one outcome's orderbook (each
// outcome's book keeps its own counter). IDs are assigned by the
// orderbook in strictly increasing order, so a price level's orders are
// always stored oldest-first.
type ID uint64

// Order is a standing limit order resting in one outcome's orderbook.
// Spend, Filled, Shares, and SharesFilled are token/share amounts at
// amount.TokenDenomination / amount.ShareDenomination scale.
type Order struct {
	ID               ID
	Creator          common.Address
	MarketID         uint64
	OutcomeID        uint64
	Spend            *amount.Amount
	Filled           *amount.Amount
	Shares           *amount.Amount
	SharesFilled     *amount.Amount
	Price            uint64
	AffiliateAccount *common.Address
}

// New constructs an order with zeroed fill counters.
func New(id ID, creator common.Address, marketID, outcomeID uint64, spend *amount.Amount, price uint64, affiliate *common.Address) *Order {
	return &Order{
		ID:               id,
		Creator:          creator,
		MarketID:         marketID,
		OutcomeID:        outcomeID,
		Spend:            spend,
		Filled:           amount.New(0),
		Shares:           amount.DivFloor(spend, amount.New(price)),
		SharesFilled:     amount.New(0),
		Price:            price,
		AffiliateAccount: affiliate,
	}
}

// LeftToSpend returns the portion of Spend not yet matched.
func (o *Order) LeftToSpend() *amount.Amount {
	return amount.Sub(o.Spend, o.Filled)
}

// IsFilled reports whether the order has less than 100 base units left to
// spend, the same "dust" threshold the matching core uses to decide an
// order is fully settled.
func (o *Order) IsFilled() bool {
	return o.LeftToSpend().Lt(amount.New(100))
}
