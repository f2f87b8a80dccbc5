package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/predimarket/engine/params"
	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/market"
)

var (
	alice = common.HexToAddress("0x1")
	bob   = common.HexToAddress("0x2")
)

// fakeClock lets a test advance wall-clock time past a market's trading
// window deterministically through the pkg/util.Clock injection point;
// pkg/app/core/market's own tests pass the time as an argument instead.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time                         { return c.now }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func newTestProtocol(t *testing.T) (*Protocol, *MemLedger, *fakeClock) {
	t.Helper()
	ledger := NewMemLedger()
	cfg := params.Default()
	p := New(common.HexToAddress("0xA"), ledger, zap.NewNop(), cfg.Protocol, common.HexToAddress("0xE"))
	clock := &fakeClock{now: time.Now()}
	p.clock = clock
	return p, ledger, clock
}

func createTestMarket(t *testing.T, p *Protocol, ledger *MemLedger, creator common.Address, tradingEnd time.Time) *market.Market {
	t.Helper()
	ledger.Credit(creator, amount.Tokens(1_000))
	m, err := p.CreateMarket(context.Background(), creator, 2, "will it happen", "", nil, nil, "",
		tradingEnd, amount.New(0), 0, 0)
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

// TestPlaceOrderRollsBackReservationOnEngineError mirrors the two-phase
// reserve/commit boundary's failure path: the spend is moved into escrow
// before the engine mutation runs, so a rejected order must refund it in
// full rather than leaving the caller's balance short.
func TestPlaceOrderRollsBackReservationOnEngineError(t *testing.T) {
	p, ledger, _ := newTestProtocol(t)
	m := createTestMarket(t, p, ledger, alice, time.Now().Add(time.Hour))

	before := ledger.BalanceOf(alice)

	// Price 0 is out of [1,99]: market.PlaceOrder rejects it only after
	// protocol.PlaceOrder has already reserved the spend into escrow.
	_, _, _, err := p.PlaceOrder(context.Background(), m.ID, 0, alice, amount.Tokens(1), 0, nil)
	if err == nil {
		t.Fatal("expected an error placing an order at an out-of-range price")
	}

	after := ledger.BalanceOf(alice)
	if after.Cmp(before) != 0 {
		t.Fatalf("balance after a rejected order = %s, want unchanged %s (reservation not rolled back)", after.String(), before.String())
	}
}

func TestChangeOwnerRequiresCurrentOwner(t *testing.T) {
	p, _, _ := newTestProtocol(t)
	owner := common.HexToAddress("0xA")

	if err := p.ChangeOwner(bob, alice); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner for a non-owner caller, got %v", err)
	}
	if err := p.ChangeOwner(owner, bob); err != nil {
		t.Fatalf("change owner: %v", err)
	}
	if p.Owner() != bob {
		t.Fatalf("owner = %s, want %s", p.Owner().Hex(), bob.Hex())
	}
}

func TestPlaceOrderRejectsSpendBelowMinimum(t *testing.T) {
	p, ledger, _ := newTestProtocol(t)
	m := createTestMarket(t, p, ledger, alice, time.Now().Add(time.Hour))

	below := amount.Sub(amount.New(params.Default().Protocol.MinOrderSpend), amount.New(1))
	if _, _, _, err := p.PlaceOrder(context.Background(), m.ID, 0, alice, below, 50, nil); err == nil {
		t.Fatal("expected an order below the minimum spend to be rejected")
	}
}

// TestClaimEarningsPaysCreatorFeeShare walks a market through trade,
// resolution, finalization, and claim, asserting the payout order at the
// token boundary: the claimant receives their total net of fees, and the
// market creator then receives the creator-fee share out of escrow.
func TestClaimEarningsPaysCreatorFeeShare(t *testing.T) {
	p, ledger, clock := newTestProtocol(t)

	creator := common.HexToAddress("0xC")
	trader := common.HexToAddress("0x7")
	staker := common.HexToAddress("0x8")
	for _, addr := range []common.Address{creator, trader, bob, staker} {
		ledger.Credit(addr, amount.Tokens(1_000))
	}

	tradingEnd := clock.now.Add(time.Hour)
	m, err := p.CreateMarket(context.Background(), creator, 2, "will it happen", "", nil, nil, "",
		tradingEnd, amount.New(0), 100, 0) // 1% creator fee
	if err != nil {
		t.Fatalf("create market: %v", err)
	}

	// Bob rests 100 NO shares at 40; the trader crosses for 100 YES shares
	// at the implied price of 60.
	if _, _, rested, err := p.PlaceOrder(context.Background(), m.ID, 1, bob, amount.Tokens(40), 40, nil); err != nil || !rested {
		t.Fatalf("bob's resting order: rested=%v err=%v", rested, err)
	}
	filled, _, rested, err := p.PlaceOrder(context.Background(), m.ID, 0, trader, amount.Tokens(60), 70, nil)
	if err != nil || rested {
		t.Fatalf("trader's crossing order: rested=%v err=%v", rested, err)
	}
	if filled.Cmp(amount.New(100*amount.ShareDenomination)) != 0 {
		t.Fatalf("filled = %s, want 100 shares", filled.String())
	}

	clock.now = tradingEnd.Add(time.Minute)
	if _, err := p.ResoluteMarket(context.Background(), m.ID, 0, staker, amount.New(params.Default().Protocol.ResolutionBondBase)); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	clock.now = m.CurrentWindow().EndTime.Add(time.Second)
	if err := p.FinalizeMarket(context.Background(), m.ID, bob, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	traderBefore := ledger.BalanceOf(trader)
	creatorBefore := ledger.BalanceOf(creator)

	result, err := p.ClaimEarnings(context.Background(), m.ID, trader)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	// winnings = 100 shares * 100 = 100 tokens; resolution fee 1% and
	// creator fee 1% leave the trader 98 tokens net.
	wantTotal := amount.Tokens(98)
	if result.Total.Cmp(wantTotal) != 0 {
		t.Fatalf("claim total = %s, want %s", result.Total.String(), wantTotal.String())
	}
	traderAfter := ledger.BalanceOf(trader)
	if amount.Sub(traderAfter, traderBefore).Cmp(wantTotal) != 0 {
		t.Fatalf("trader balance delta = %s, want %s", amount.Sub(traderAfter, traderBefore).String(), wantTotal.String())
	}

	wantCreatorFee := amount.Tokens(1)
	if result.CreatorFee.Cmp(wantCreatorFee) != 0 {
		t.Fatalf("creator fee = %s, want %s", result.CreatorFee.String(), wantCreatorFee.String())
	}
	creatorAfter := ledger.BalanceOf(creator)
	if amount.Sub(creatorAfter, creatorBefore).Cmp(wantCreatorFee) != 0 {
		t.Fatalf("creator balance delta = %s, want %s (creator fee share)", amount.Sub(creatorAfter, creatorBefore).String(), wantCreatorFee.String())
	}
}

// TestCancelOrderRejectedOnceMarketResoluted exercises the reserve/commit
// boundary's cancel path after the market closes: the spend escrowed by a
// resting order must stay in escrow once cancellation is no longer legal,
// rather than being refunded out from under a resolved market.
func TestCancelOrderRejectedOnceMarketResoluted(t *testing.T) {
	p, ledger, clock := newTestProtocol(t)
	tradingEnd := time.Now().Add(time.Hour)
	m := createTestMarket(t, p, ledger, alice, tradingEnd)

	_, orderID, rested, err := p.PlaceOrder(context.Background(), m.ID, 0, alice, amount.New(60*amount.TokenDenomination/100), 60, nil)
	if err != nil || !rested {
		t.Fatalf("place resting order: rested=%v err=%v", rested, err)
	}

	clock.now = tradingEnd.Add(time.Minute)
	ledger.Credit(bob, amount.Tokens(10_000))
	if _, err := p.ResoluteMarket(context.Background(), m.ID, 0, bob, amount.New(params.Default().Protocol.ResolutionBondBase)); err != nil {
		t.Fatalf("resolute: %v", err)
	}

	before := ledger.BalanceOf(alice)
	if _, err := p.CancelOrder(context.Background(), m.ID, 0, orderID, alice); err != market.ErrMarketNotTrading {
		t.Fatalf("expected ErrMarketNotTrading cancelling after resolution, got %v", err)
	}
	after := ledger.BalanceOf(alice)
	if after.Cmp(before) != 0 {
		t.Fatalf("balance changed on a rejected cancel: before %s after %s", before.String(), after.String())
	}
}
