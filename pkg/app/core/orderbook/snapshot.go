package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/order"
)

// Snapshot is the JSON-serializable form of an Orderbook, used by
// pkg/storage to persist and restore book state under the
// "market:{id}:orderbooks:{outcome}" key.
type Snapshot struct {
	MarketID  uint64
	OutcomeID uint64
	NextID    order.ID
	Orders    []*order.Order
	Accounts  map[common.Address]*AccountOutcomeData
}

// Snapshot captures the current book state for persistence.
func (b *Orderbook) Snapshot() Snapshot {
	var orders []*order.Order
	for _, pd := range b.priceData {
		orders = append(orders, pd.Orders...)
	}
	return Snapshot{
		MarketID:  b.MarketID,
		OutcomeID: b.OutcomeID,
		NextID:    b.nextID,
		Orders:    orders,
		Accounts:  b.accounts,
	}
}

// FromSnapshot rebuilds a book from a previously captured Snapshot.
func FromSnapshot(s Snapshot) *Orderbook {
	b := New(s.MarketID, s.OutcomeID)
	b.nextID = s.NextID
	if s.Accounts != nil {
		b.accounts = s.Accounts
	}
	for _, o := range s.Orders {
		pd, ok := b.priceData[o.Price]
		if !ok {
			pd = newPriceData(o.Price)
			b.priceData[o.Price] = pd
			b.priceHeap = append(b.priceHeap, o.Price)
		}
		pd.Orders = append(pd.Orders, o)
		pd.ShareLiquidity = amount.Add(pd.ShareLiquidity, sharesFillable(o, o.Price))
	}
	heapifyPrices(&b.priceHeap)
	return b
}
