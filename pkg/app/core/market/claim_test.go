package market

import (
	"testing"
	"time"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

func newFeeTestMarket(numOutcomes uint64, resolutionFeeBps uint64) *Market {
	fees := FeeParams{CreatorFeeBps: 0, ResolutionFeeBps: resolutionFeeBps, AffiliateFeeBps: 0}
	return New(0, judge, judge, numOutcomes, "will it happen", "", nil, nil, "", time.Now().Add(time.Hour), amount.New(0), fees, bondBase)
}

// TestClaimEarningsInvalidMarketRefundsSpentMinusFee: on an invalid
// resolution a trader's spent tokens come back in full, taxed only by
// the resolution fee, with zero creator fee since an invalid market
// forfeits it.
func TestClaimEarningsInvalidMarketRefundsSpentMinusFee(t *testing.T) {
	m := newFeeTestMarket(2, 100) // 1%

	if _, _, _, _, err := m.PlaceOrder(bob, 1, amount.New(4000), 40, nil, time.Now()); err != nil {
		t.Fatalf("bob's resting order: %v", err)
	}
	filled, _, rested, _, err := m.PlaceOrder(alice, 0, amount.New(6000), 70, nil, time.Now())
	if err != nil {
		t.Fatalf("alice's crossing order: %v", err)
	}
	if rested || filled.Cmp(amount.New(100)) != 0 {
		t.Fatalf("expected alice to fully cross for 100 shares, got filled=%s rested=%v", filled.String(), rested)
	}

	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(judge, m.InvalidOutcome(), bondBase, now); err != nil {
		t.Fatalf("resolute invalid: %v", err)
	}
	if err := m.Finalize(bob, nil, m.CurrentWindow().EndTime.Add(time.Second)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if m.WinningOutcome != nil {
		t.Fatalf("expected invalid resolution, got outcome %v", *m.WinningOutcome)
	}

	result, err := m.ClaimEarnings(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Winnings.Cmp(amount.New(6000)) != 0 {
		t.Fatalf("winnings = %s, want 6000 (spent refunded in full)", result.Winnings.String())
	}
	if result.CreatorFee.Cmp(amount.New(0)) != 0 {
		t.Fatalf("creator fee = %s, want 0 on an invalid resolution", result.CreatorFee.String())
	}
	if result.ResolutionFee.Cmp(amount.New(60)) != 0 {
		t.Fatalf("resolution fee = %s, want 60 (1%% of 6000)", result.ResolutionFee.String())
	}
	if result.Total.Cmp(amount.New(5940)) != 0 {
		t.Fatalf("total = %s, want 5940", result.Total.String())
	}

	if _, err := m.ClaimEarnings(alice); err != ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed on a second claim, got %v", err)
	}

	// The judge bonded round 0 on "invalid", which is the outcome the
	// market finalized with: their stake comes back plus the whole
	// resolution fee pool (1% of the 10000 filled volume), and the
	// creator's validity bond stays forfeited on an invalid resolution.
	judgeResult, err := m.ClaimEarnings(judge)
	if err != nil {
		t.Fatalf("judge claim: %v", err)
	}
	wantGovernance := amount.New(1000 + 100)
	if judgeResult.GovernanceEarnings.Cmp(wantGovernance) != 0 {
		t.Fatalf("judge governance earnings = %s, want %s (stake back plus fee pool)", judgeResult.GovernanceEarnings.String(), wantGovernance.String())
	}
	if !judgeResult.ValidityBond.IsZero() {
		t.Fatalf("validity bond = %s, want 0 on an invalid resolution", judgeResult.ValidityBond.String())
	}
	if judgeResult.Total.Cmp(wantGovernance) != 0 {
		t.Fatalf("judge total = %s, want %s", judgeResult.Total.String(), wantGovernance.String())
	}
}

// TestClaimEarningsDisputeRewardIncludesStakeBack: a round-0 resolutor
// whose outcome survives a dispute and a judge override gets back their
// own bonded stake plus a pro-rata share of the resolution fee pool,
// not the fee share alone.
func TestClaimEarningsDisputeRewardIncludesStakeBack(t *testing.T) {
	m := newFeeTestMarket(2, 100) // 1%

	if _, _, _, _, err := m.PlaceOrder(bob, 1, amount.New(4000), 40, nil, time.Now()); err != nil {
		t.Fatalf("bob's resting order: %v", err)
	}
	if _, _, _, _, err := m.PlaceOrder(alice, 0, amount.New(6000), 70, nil, time.Now()); err != nil {
		t.Fatalf("alice's crossing order: %v", err)
	}
	// filled volume = 100 shares * 100 = 10000, resolution fee pool = 1% = 100

	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(alice, 0, bondBase, now); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if _, err := m.Dispute(bob, 1, amount.New(2000), now); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if !m.Disputed {
		t.Fatal("expected the round-1 bond to fill and dispute the market")
	}

	override := uint64(0)
	if err := m.Finalize(judge, &override, now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 0 {
		t.Fatalf("winning outcome = %v, want 0 (judge restored round-0's outcome)", m.WinningOutcome)
	}

	result, err := m.ClaimEarnings(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// governance_earnings = stake back (1000) + resolution_fee_pool * userStake/totalStake (100*1000/1000=100)
	wantGovernance := amount.New(1100)
	if result.GovernanceEarnings.Cmp(wantGovernance) != 0 {
		t.Fatalf("governance earnings = %s, want %s", result.GovernanceEarnings.String(), wantGovernance.String())
	}
	if result.Winnings.Cmp(amount.New(10000)) != 0 {
		t.Fatalf("winnings = %s, want 10000 (100 shares redeemed at par)", result.Winnings.String())
	}
	wantTotal := amount.New(11000) // 10000 + 1100 governance - 100 resolution fee
	if result.Total.Cmp(wantTotal) != 0 {
		t.Fatalf("total = %s, want %s", result.Total.String(), wantTotal.String())
	}

	// Bob staked on the round-1 outcome that lost to the judge's override
	// and holds only losing-outcome shares: nothing to claim.
	if _, err := m.ClaimEarnings(bob); err != ErrNothingToClaim {
		t.Fatalf("expected ErrNothingToClaim for bob, got %v", err)
	}
}

func TestClaimEarningsRejectsBeforeFinalized(t *testing.T) {
	m := newFeeTestMarket(2, 0)
	if _, err := m.ClaimEarnings(alice); err != ErrMarketNotResoluted {
		t.Fatalf("expected ErrMarketNotResoluted, got %v", err)
	}
}
