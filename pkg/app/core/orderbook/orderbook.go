// Package orderbook implements the per-outcome central-limit orderbook:
// one price-ordered FIFO book per outcome of a market. The book is
// single-sided because every resting order is a "buy shares of this
// outcome" intent; there is no ask side, the counterparty liquidity
// comes from sibling outcomes' books via cross-outcome matching in the
// market package.
package orderbook

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/order"
)

var (
	ErrOrderNotFound      = errors.New("orderbook: order not found")
	ErrNotOrderOwner      = errors.New("orderbook: caller does not own order")
	ErrInvalidPrice       = errors.New("orderbook: price out of range [1,99]")
	ErrDustSpend          = errors.New("orderbook: spend too small to buy any shares at this price")
	ErrInsufficientShares = errors.New("orderbook: account does not hold enough shares")
)

// MinPrice and MaxPrice bound every order's integer price.
const (
	MinPrice = 1
	MaxPrice = 99
	// dustSpend is the left-to-spend floor below which an order is
	// considered fully settled; the remainder stays unspent even where it
	// would still buy shares at a low price.
	dustSpend = 100
)

// Fill is one match produced by FillBestOrders: `orderID`'s resting order
// had `shares` filled at `price`.
type Fill struct {
	OrderID order.ID
	Creator common.Address
	Price   uint64
	Shares  *amount.Amount
	Spend   *amount.Amount
	Closed  bool
}

// Orderbook is the resting-order book for one outcome of one market.
type Orderbook struct {
	MarketID  uint64
	OutcomeID uint64

	priceData map[uint64]*PriceData
	priceHeap maxPriceHeap
	accounts  map[common.Address]*AccountOutcomeData
	nextID    order.ID
}

// New constructs an empty book for the given market/outcome pair.
func New(marketID, outcomeID uint64) *Orderbook {
	return &Orderbook{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		priceData: make(map[uint64]*PriceData),
		accounts:  make(map[common.Address]*AccountOutcomeData),
	}
}

func (b *Orderbook) accountData(addr common.Address) *AccountOutcomeData {
	a, ok := b.accounts[addr]
	if !ok {
		a = newAccountOutcomeData()
		b.accounts[addr] = a
	}
	return a
}

// Account returns a read-only snapshot of an account's exposure to this
// outcome, or nil if the account has never traded it.
func (b *Orderbook) Account(addr common.Address) *AccountOutcomeData {
	return b.accounts[addr]
}

// BestPrice returns the highest price carrying resting liquidity.
func (b *Orderbook) BestPrice() (uint64, bool) {
	return b.priceHeap.Peek()
}

// PlaceOrder rests a new order in the book at the given price. It performs
// no matching itself — cross-outcome matching against this liquidity is
// driven by the market package calling FillBestOrders. Returns the created
// order.
func (b *Orderbook) PlaceOrder(creator common.Address, spend *amount.Amount, price uint64, affiliate *common.Address) (*order.Order, error) {
	if price < MinPrice || price > MaxPrice {
		return nil, ErrInvalidPrice
	}
	if spend.Lt(amount.New(dustSpend)) {
		return nil, ErrDustSpend
	}

	b.nextID++
	o := order.New(b.nextID, creator, b.MarketID, b.OutcomeID, spend, price, affiliate)

	pd, ok := b.priceData[price]
	if !ok {
		pd = newPriceData(price)
		b.priceData[price] = pd
		heap.Push(&b.priceHeap, price)
	}
	pd.push(o)

	acc := b.accountData(creator)
	acc.ToSpend = amount.Add(acc.ToSpend, spend)
	acc.OpenOrders[o.ID] = struct{}{}

	return o, nil
}

// CancelOrder removes a resting order, returning the unspent portion of
// its escrowed spend to refund to the caller.
func (b *Orderbook) CancelOrder(id order.ID, caller common.Address) (*amount.Amount, error) {
	pd, idx, o, err := b.locate(id)
	if err != nil {
		return nil, err
	}
	if o.Creator != caller {
		return nil, ErrNotOrderOwner
	}

	refund := o.LeftToSpend()
	pd.ShareLiquidity = amount.Sub(pd.ShareLiquidity, sharesFillable(o, pd.Price))
	pd.removeAt(idx)
	if pd.empty() {
		b.removePriceLevel(pd.Price)
	}

	acc := b.accountData(caller)
	acc.ToSpend = amount.Sub(acc.ToSpend, refund)
	delete(acc.OpenOrders, id)

	return refund, nil
}

func (b *Orderbook) locate(id order.ID) (*PriceData, int, *order.Order, error) {
	for _, pd := range b.priceData {
		for i, o := range pd.Orders {
			if o.ID == id {
				return pd, i, o, nil
			}
		}
	}
	return nil, 0, nil, ErrOrderNotFound
}

func (b *Orderbook) removePriceLevel(price uint64) {
	delete(b.priceData, price)
	for i, p := range b.priceHeap {
		if p == price {
			heap.Remove(&b.priceHeap, i)
			return
		}
	}
}

// FillBestOrders consumes up to sharesToFill units of resting liquidity,
// price-time priority (highest price first, FIFO within a price level).
// It mutates every partially or fully filled order in place and returns
// one Fill record per touched order. Panics if a resting order's
// liquidity is zero at the time it is visited, since an order only rests
// while its remaining spend buys at least one share (see dustSpend).
func (b *Orderbook) FillBestOrders(sharesToFill *amount.Amount) []Fill {
	var fills []Fill
	remaining := new(amount.Amount).Set(sharesToFill)

	for !remaining.IsZero() {
		price, ok := b.priceHeap.Peek()
		if !ok {
			break
		}
		pd := b.priceData[price]

		for len(pd.Orders) > 0 && !remaining.IsZero() {
			o := pd.Orders[0]
			fillable := sharesFillable(o, price)
			if fillable.IsZero() {
				panic(fmt.Sprintf("orderbook: resting order %d has zero fillable liquidity at price %d", o.ID, price))
			}
			take := amount.Min(fillable, remaining)
			spend := amount.Mul(take, amount.New(price))

			o.Filled = amount.Add(o.Filled, spend)
			o.SharesFilled = amount.Add(o.SharesFilled, take)
			pd.ShareLiquidity = amount.Sub(pd.ShareLiquidity, take)
			remaining = amount.Sub(remaining, take)

			acc := b.accountData(o.Creator)
			acc.Balance = amount.Add(acc.Balance, take)
			acc.Spent = amount.Add(acc.Spent, spend)
			acc.ToSpend = amount.Sub(acc.ToSpend, spend)

			closed := o.IsFilled()
			fills = append(fills, Fill{
				OrderID: o.ID,
				Creator: o.Creator,
				Price:   price,
				Shares:  take,
				Spend:   spend,
				Closed:  closed,
			})

			if closed {
				pd.removeAt(0)
				delete(acc.OpenOrders, o.ID)
			} else {
				break // FIFO: partially filled order stays at the head, stop this level
			}
		}

		if pd.empty() {
			b.removePriceLevel(price)
		} else if !pd.Orders[0].IsFilled() {
			break
		}
	}

	return fills
}

// DepthDownToPrice sums the resting share liquidity at every price level
// greater than or equal to minPrice. The bound is inclusive: liquidity
// resting exactly at minPrice counts.
func (b *Orderbook) DepthDownToPrice(minPrice uint64) *amount.Amount {
	total := amount.New(0)
	for price, pd := range b.priceData {
		if price >= minPrice {
			total = amount.Add(total, pd.ShareLiquidity)
		}
	}
	return total
}

// GetDepthDownToPrice walks price levels from the best price down to
// minPrice inclusive, summing available share_liquidity capped by
// maxShares, and returns the volume-weighted average price of the walked
// liquidity. Returns (0, 0) if no liquidity exists at or above minPrice.
func (b *Orderbook) GetDepthDownToPrice(maxShares *amount.Amount, minPrice uint64) (*amount.Amount, uint64) {
	prices := make([]uint64, 0, len(b.priceHeap))
	for price := range b.priceData {
		if price >= minPrice {
			prices = append(prices, price)
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })

	depth := amount.New(0)
	weighted := amount.New(0)
	for _, price := range prices {
		if !depth.Lt(maxShares) {
			break
		}
		remaining := amount.Sub(maxShares, depth)
		liq := amount.Min(b.priceData[price].ShareLiquidity, remaining)
		weighted = amount.Add(weighted, amount.Mul(liq, amount.New(price)))
		depth = amount.Add(depth, liq)
	}

	if depth.IsZero() {
		return amount.New(0), 0
	}
	return depth, amount.DivFloor(weighted, depth).Uint64()
}

// MinSharesFillableAtBest returns the resting liquidity at the best price,
// the ceiling on how many shares a single matching step can move without
// walking past the top of book.
func (b *Orderbook) MinSharesFillableAtBest() *amount.Amount {
	price, ok := b.BestPrice()
	if !ok {
		return amount.New(0)
	}
	return b.priceData[price].ShareLiquidity
}

// CreditTaker grants shares directly to an account with no resting order,
// the complement side of a cross-outcome fill: buying outcome A's shares
// by consuming a sibling outcome's resting liquidity mints A's shares to
// the taker without ever touching outcome A's own book.
func (b *Orderbook) CreditTaker(addr common.Address, shares, spend *amount.Amount) {
	acc := b.accountData(addr)
	acc.Balance = amount.Add(acc.Balance, shares)
	acc.Spent = amount.Add(acc.Spent, spend)
}

// DebitSeller removes sold shares from an account's balance and unwinds
// their cost basis at avgBuyPrice, used by a dynamic market sell once
// proceeds have been computed. ToSpend is left untouched: it holds
// spend-not-yet-matched and is already decremented as each fill lands
// (see FillBestOrders), so touching it here would double-count the cost
// basis removed at fill time.
func (b *Orderbook) DebitSeller(addr common.Address, shares *amount.Amount, avgBuyPrice uint64) error {
	acc := b.accountData(addr)
	if acc.Balance.Lt(shares) {
		return ErrInsufficientShares
	}
	costBasis := amount.Mul(shares, amount.New(avgBuyPrice))
	acc.Balance = amount.Sub(acc.Balance, shares)
	acc.Spent = amount.Sub(acc.Spent, costBasis)
	return nil
}
