package orderbook

import (
	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/order"
)

// PriceData aggregates every resting order at a single price, FIFO ordered
// by placement (order.ID is monotonic, so append-only is sufficient).
type PriceData struct {
	Price          uint64
	ShareLiquidity *amount.Amount
	Orders         []*order.Order
}

func newPriceData(price uint64) *PriceData {
	return &PriceData{Price: price, ShareLiquidity: amount.New(0)}
}

func sharesFillable(o *order.Order, price uint64) *amount.Amount {
	return amount.DivFloor(o.LeftToSpend(), amount.New(price))
}

func (p *PriceData) push(o *order.Order) {
	p.Orders = append(p.Orders, o)
	p.ShareLiquidity = amount.Add(p.ShareLiquidity, sharesFillable(o, p.Price))
}

// removeAt removes the order at index i (the order must already be closed
// or cancelled, i.e. not contributing remaining liquidity).
func (p *PriceData) removeAt(i int) {
	p.Orders = append(p.Orders[:i], p.Orders[i+1:]...)
}

func (p *PriceData) empty() bool {
	return len(p.Orders) == 0
}

// AccountOutcomeData tracks one account's exposure to one outcome's book:
// the running balance of shares owned outright, tokens already spent on
// filled shares, tokens still locked in open orders, and the set of open
// order ids (for cancellation and claim-time accounting of funds still
// parked in open orders).
type AccountOutcomeData struct {
	Balance    *amount.Amount
	Spent      *amount.Amount
	ToSpend    *amount.Amount
	OpenOrders map[order.ID]struct{}
}

func newAccountOutcomeData() *AccountOutcomeData {
	return &AccountOutcomeData{
		Balance:    amount.New(0),
		Spent:      amount.New(0),
		ToSpend:    amount.New(0),
		OpenOrders: make(map[order.ID]struct{}),
	}
}
