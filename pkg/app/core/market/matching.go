package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/order"
	"github.com/predimarket/engine/pkg/app/core/orderbook"
)

func orderIDFromUint(id uint64) order.ID { return order.ID(id) }

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// marketPriceFor returns the implied price of `outcome`: 100 minus the sum
// of the best resting price in every other outcome's book. A sibling book
// with no resting liquidity contributes 0, so a wholly unpriced sibling
// maximizes this outcome's implied price.
func (m *Market) marketPriceFor(outcome uint64) uint64 {
	sum := uint64(0)
	for o := uint64(0); o < m.NumOutcomes; o++ {
		if o == outcome {
			continue
		}
		if best, ok := m.orderbooks[o].BestPrice(); ok {
			sum += best
		}
	}
	if sum > 100 {
		return 0
	}
	return 100 - sum
}

// minSharesFillable returns the smallest resting liquidity at the best
// price across every outcome other than `outcome` — the ceiling on how
// many shares one matching step can move, since filling crosses every
// sibling book simultaneously.
func (m *Market) minSharesFillable(outcome uint64) *amount.Amount {
	var min *amount.Amount
	for o := uint64(0); o < m.NumOutcomes; o++ {
		if o == outcome {
			continue
		}
		liq := m.orderbooks[o].MinSharesFillableAtBest()
		if min == nil || liq.Lt(min) {
			min = liq
		}
	}
	if min == nil {
		return amount.New(0)
	}
	return min
}

// RestingFill pairs one orderbook.Fill with the sibling outcome whose book
// it was taken from, so a caller can emit an order_partly_filled or
// order_closed event per resting order touched by a cross-outcome match.
type RestingFill struct {
	Outcome uint64
	orderbook.Fill
}

// fillMatches implements the cross-outcome matching core (fill_matches):
// given a taker's limit price for `outcome` and a spend budget, it walks
// the implied market price up as it drains sibling liquidity, crediting
// the taker with outcome shares directly, until either the spend is
// exhausted, the market price rises above the limit, or no sibling
// liquidity remains. Returns the unspent remainder, the shares credited to
// the taker, and every resting order touched on the sibling books.
func (m *Market) fillMatches(taker common.Address, outcome uint64, price uint64, spend *amount.Amount) (*amount.Amount, *amount.Amount, []RestingFill) {
	spendable := new(amount.Amount).Set(spend)
	sharesFilled := amount.New(0)
	var touched []RestingFill

	marketPrice := m.marketPriceFor(outcome)
	if marketPrice > price {
		return spendable, sharesFilled, touched
	}

	for spendable.Gt(amount.New(99)) && marketPrice <= price && marketPrice > 0 {
		sharesToFill := amount.Min(amount.DivFloor(spendable, amount.New(marketPrice)), m.minSharesFillable(outcome))
		if sharesToFill.IsZero() {
			break
		}

		for o := uint64(0); o < m.NumOutcomes; o++ {
			if o == outcome {
				continue
			}
			for _, f := range m.orderbooks[o].FillBestOrders(sharesToFill) {
				touched = append(touched, RestingFill{Outcome: o, Fill: f})
			}
		}

		cost := amount.Mul(sharesToFill, amount.New(marketPrice))
		spendable = amount.Sub(spendable, cost)
		sharesFilled = amount.Add(sharesFilled, sharesToFill)

		marketPrice = m.marketPriceFor(outcome)
	}

	if !sharesFilled.IsZero() {
		m.orderbooks[outcome].CreditTaker(taker, sharesFilled, amount.Sub(spend, spendable))
	}

	return spendable, sharesFilled, touched
}

// PlaceOrder is create_order: it first crosses as much of the spend as
// the current cross-outcome market price allows, then rests any
// remainder as a limit order in the outcome's own book.
func (m *Market) PlaceOrder(creator common.Address, outcome uint64, spend *amount.Amount, price uint64, affiliate *common.Address, now time.Time) (filledShares *amount.Amount, restingOrderID uint64, restedOrder bool, touched []RestingFill, err error) {
	if m.Status != Trading {
		return nil, 0, false, nil, ErrMarketNotTrading
	}
	if !now.Before(m.TradingEndTime) {
		return nil, 0, false, nil, ErrMarketTradingEnded
	}
	if !m.IsValidOutcome(outcome) || outcome == m.InvalidOutcome() {
		return nil, 0, false, nil, ErrMarketInvalidOutcome
	}
	if price < orderbook.MinPrice || price > orderbook.MaxPrice {
		return nil, 0, false, nil, ErrInvalidPrice
	}

	leftover, filled, touched := m.fillMatches(creator, outcome, price, spend)
	if !filled.IsZero() {
		m.FilledVolume = amount.Add(m.FilledVolume, amount.Mul(filled, amount.New(100)))
	}

	if leftover.Lt(amount.New(100)) {
		return filled, 0, false, touched, nil
	}

	o, perr := m.orderbooks[outcome].PlaceOrder(creator, leftover, price, affiliate)
	if perr != nil {
		return filled, 0, false, touched, perr
	}
	return filled, uint64(o.ID), true, touched, nil
}

// CancelOrder cancels a resting order in one outcome's book, returning
// the refund owed to the caller. Fails once the market has resolved,
// matching cancel_order's precondition that a resolved market's orderbook
// is read-only.
func (m *Market) CancelOrder(outcome uint64, orderID uint64, caller common.Address) (*amount.Amount, error) {
	if m.Status != Trading || m.Resoluted {
		return nil, ErrMarketNotTrading
	}
	if !m.IsValidOutcome(outcome) || outcome == m.InvalidOutcome() {
		return nil, ErrMarketInvalidOutcome
	}
	return m.orderbooks[outcome].CancelOrder(orderIDFromUint(orderID), caller)
}

// DynamicMarketSell sells up to `shares` of an outcome the caller already
// holds, walking that outcome's own resting buy orders down from the best
// price and refusing to clear below minPrice. The seller is paid at most
// their average buy price per share; any spread between the realized
// sell price and that cost basis is parked in the validity escrow until
// the market finalizes.
func (m *Market) DynamicMarketSell(seller common.Address, outcome uint64, shares *amount.Amount, minPrice uint64) (*amount.Amount, *amount.Amount, error) {
	if m.Finalized {
		return nil, nil, ErrMarketFinalized
	}
	if !m.IsValidOutcome(outcome) || outcome == m.InvalidOutcome() {
		return nil, nil, ErrMarketInvalidOutcome
	}
	if minPrice < 1 || minPrice > 99 {
		return nil, nil, ErrInvalidPrice
	}

	book := m.orderbooks[outcome]
	acc := book.Account(seller)
	if acc == nil || acc.Balance.Lt(shares) {
		return nil, nil, ErrInsufficientShares
	}
	avgBuyPrice := uint64(1)
	if !acc.Balance.IsZero() {
		avgBuyPrice = amount.DivFloor(acc.Spent, acc.Balance).Uint64()
		if avgBuyPrice == 0 {
			avgBuyPrice = 1
		}
	}

	sellDepth, _ := book.GetDepthDownToPrice(shares, minPrice)
	if sellDepth.IsZero() {
		return amount.New(0), amount.New(0), nil
	}

	fills := book.FillBestOrders(sellDepth)

	filled := amount.New(0)
	proceeds := amount.New(0)
	for _, f := range fills {
		filled = amount.Add(filled, f.Shares)
		proceeds = amount.Add(proceeds, f.Spend)
	}
	if filled.IsZero() {
		return amount.New(0), amount.New(0), nil
	}

	if err := book.DebitSeller(seller, filled, avgBuyPrice); err != nil {
		return nil, nil, err
	}

	avgSellPrice := amount.DivFloor(proceeds, filled).Uint64()
	m.escrow.Update(seller, filled, avgSellPrice, avgBuyPrice)
	m.FilledVolume = amount.Add(m.FilledVolume, amount.Mul(filled, amount.New(avgSellPrice)))

	payout := amount.Mul(filled, amount.New(minUint64(avgBuyPrice, avgSellPrice)))
	return filled, payout, nil
}
