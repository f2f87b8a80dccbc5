package market

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

var (
	alice    = common.HexToAddress("0x1")
	bob      = common.HexToAddress("0x2")
	carol    = common.HexToAddress("0x3")
	dave     = common.HexToAddress("0x4")
	judge    = common.HexToAddress("0x5")
	bondBase = amount.New(1000)
)

func newTestMarket(numOutcomes uint64) *Market {
	fees := FeeParams{CreatorFeeBps: 0, ResolutionFeeBps: 0, AffiliateFeeBps: 0}
	return New(0, judge, judge, numOutcomes, "will it happen", "", nil, nil, "", time.Now().Add(time.Hour), amount.New(0), fees, bondBase)
}

// TestBinaryOrderMatching: a resting NO order is crossed by a YES buy at
// the implied price.
func TestBinaryOrderMatching(t *testing.T) {
	m := newTestMarket(2)

	// Bob rests 100 shares of NO (outcome 1) at price 40.
	_, _, rested, _, err := m.PlaceOrder(bob, 1, amount.New(4000), 40, nil, time.Now())
	if err != nil || !rested {
		t.Fatalf("bob's resting order: rested=%v err=%v", rested, err)
	}

	// Alice buys YES (outcome 0) at price 70; implied YES price is 100-40=60.
	filled, _, rested, touched, err := m.PlaceOrder(alice, 0, amount.New(6000), 70, nil, time.Now())
	if err != nil {
		t.Fatalf("alice's crossing order: %v", err)
	}
	if rested {
		t.Fatal("alice's order should have fully crossed, not rested")
	}
	if filled.Cmp(amount.New(100)) != 0 {
		t.Fatalf("filled shares = %s, want 100", filled.String())
	}
	if len(touched) != 1 || touched[0].Outcome != 1 || !touched[0].Closed {
		t.Fatalf("expected bob's NO order to close, got %+v", touched)
	}

	yesBook := m.Orderbook(0)
	aliceAcc := yesBook.Account(alice)
	if aliceAcc == nil || aliceAcc.Balance.Cmp(amount.New(100)) != 0 {
		t.Fatalf("alice's YES balance = %v, want 100", aliceAcc)
	}

	noBook := m.Orderbook(1)
	bobAcc := noBook.Account(bob)
	if bobAcc == nil || bobAcc.Balance.Cmp(amount.New(100)) != 0 {
		t.Fatalf("bob's NO balance = %v, want 100", bobAcc)
	}

	wantVolume := amount.New(100 * 100)
	if m.FilledVolume.Cmp(wantVolume) != 0 {
		t.Fatalf("filled volume = %s, want %s", m.FilledVolume.String(), wantVolume.String())
	}
}

// TestCategoricalMarketMatching: a taker crosses resting liquidity
// spread across three sibling outcomes.
func TestCategoricalMarketMatching(t *testing.T) {
	m := newTestMarket(4)

	// Three siblings each rest 100 shares at price 20 (sum = 60).
	if _, _, rested, _, err := m.PlaceOrder(bob, 1, amount.New(2000), 20, nil, time.Now()); err != nil || !rested {
		t.Fatalf("bob's resting order: rested=%v err=%v", rested, err)
	}
	if _, _, rested, _, err := m.PlaceOrder(carol, 2, amount.New(2000), 20, nil, time.Now()); err != nil || !rested {
		t.Fatalf("carol's resting order: rested=%v err=%v", rested, err)
	}
	if _, _, rested, _, err := m.PlaceOrder(dave, 3, amount.New(2000), 20, nil, time.Now()); err != nil || !rested {
		t.Fatalf("dave's resting order: rested=%v err=%v", rested, err)
	}

	// Alice buys outcome 0 at the implied price of 100-60=40.
	filled, _, rested, touched, err := m.PlaceOrder(alice, 0, amount.New(4000), 40, nil, time.Now())
	if err != nil {
		t.Fatalf("alice's crossing order: %v", err)
	}
	if rested {
		t.Fatal("alice's order should have fully crossed")
	}
	if filled.Cmp(amount.New(100)) != 0 {
		t.Fatalf("filled shares = %s, want 100", filled.String())
	}
	if len(touched) != 3 {
		t.Fatalf("expected 3 sibling orders touched, got %d", len(touched))
	}
	for _, f := range touched {
		if !f.Closed {
			t.Fatalf("expected sibling order on outcome %d to close, got %+v", f.Outcome, f)
		}
	}
}

func TestPlaceOrderRestsWhenMarketPriceAboveLimit(t *testing.T) {
	m := newTestMarket(2)
	if _, _, _, _, err := m.PlaceOrder(bob, 1, amount.New(9000), 90, nil, time.Now()); err != nil {
		t.Fatalf("bob's resting order: %v", err)
	}
	// Implied YES price is 100-90=10, but alice's limit of 5 is below that.
	filled, orderID, rested, _, err := m.PlaceOrder(alice, 0, amount.New(500), 5, nil, time.Now())
	if err != nil {
		t.Fatalf("alice's order: %v", err)
	}
	if !filled.IsZero() {
		t.Fatalf("expected no fill, got %s", filled.String())
	}
	if !rested || orderID == 0 {
		t.Fatal("expected alice's order to rest unfilled")
	}
}

func TestPlaceOrderRejectsInvalidOutcome(t *testing.T) {
	m := newTestMarket(2)
	if _, _, _, _, err := m.PlaceOrder(alice, 2, amount.New(1000), 50, nil, time.Now()); err != ErrMarketInvalidOutcome {
		t.Fatalf("expected ErrMarketInvalidOutcome, got %v", err)
	}
}

func TestCancelOrderRefundsThroughMarket(t *testing.T) {
	m := newTestMarket(2)
	_, orderID, rested, _, err := m.PlaceOrder(alice, 0, amount.New(6000), 60, nil, time.Now())
	if err != nil || !rested {
		t.Fatalf("place: rested=%v err=%v", rested, err)
	}
	refund, err := m.CancelOrder(0, orderID, alice)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund.Cmp(amount.New(6000)) != 0 {
		t.Fatalf("refund = %s, want 6000", refund.String())
	}
}

func TestCancelOrderRejectsAfterResolution(t *testing.T) {
	m := newTestMarket(2)
	_, orderID, rested, _, err := m.PlaceOrder(alice, 0, amount.New(6000), 60, nil, time.Now())
	if err != nil || !rested {
		t.Fatalf("place: rested=%v err=%v", rested, err)
	}

	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(judge, 0, bondBase, now); err != nil {
		t.Fatalf("resolute: %v", err)
	}

	if _, err := m.CancelOrder(0, orderID, alice); err != ErrMarketNotTrading {
		t.Fatalf("expected ErrMarketNotTrading once the market has resolved, got %v", err)
	}
}

// TestDynamicMarketSellForProfit: a holder sells shares back into
// resting buy orders for a profit over their cost basis.
func TestDynamicMarketSellForProfit(t *testing.T) {
	m := newTestMarket(2)

	// Bob rests NO at 40, alice crosses to buy 100 YES shares at cost 60/share.
	if _, _, _, _, err := m.PlaceOrder(bob, 1, amount.New(4000), 40, nil, time.Now()); err != nil {
		t.Fatalf("bob's resting order: %v", err)
	}
	if _, _, _, _, err := m.PlaceOrder(alice, 0, amount.New(6000), 70, nil, time.Now()); err != nil {
		t.Fatalf("alice's crossing order: %v", err)
	}

	// Carol rests a new, higher YES buy order at price 80.
	if _, _, _, _, err := m.PlaceOrder(carol, 0, amount.New(8000), 80, nil, time.Now()); err != nil {
		t.Fatalf("carol's resting order: %v", err)
	}

	// Alice sells her 100 YES shares into carol's order at 80, above her
	// cost basis of 60.
	filled, proceeds, err := m.DynamicMarketSell(alice, 0, amount.New(100), 1)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if filled.Cmp(amount.New(100)) != 0 {
		t.Fatalf("filled = %s, want 100", filled.String())
	}
	// Payout is capped at min(avgBuyPrice, avgSellPrice) = 60/share.
	wantPayout := amount.New(100 * 60)
	if proceeds.Cmp(wantPayout) != 0 {
		t.Fatalf("proceeds = %s, want %s", proceeds.String(), wantPayout.String())
	}
}

func TestDynamicMarketSellRejectsInsufficientShares(t *testing.T) {
	m := newTestMarket(2)
	if _, _, err := m.DynamicMarketSell(alice, 0, amount.New(10), 1); err != ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestDynamicMarketSellRejectsAfterFinalize(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(judge, 0, bondBase, now); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if err := m.Finalize(bob, nil, m.CurrentWindow().EndTime.Add(time.Second)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, _, err := m.DynamicMarketSell(alice, 0, amount.New(10), 1); err != ErrMarketFinalized {
		t.Fatalf("expected ErrMarketFinalized, got %v", err)
	}
}
