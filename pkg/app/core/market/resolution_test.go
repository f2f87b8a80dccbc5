package market

import (
	"testing"
	"time"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

func TestResoluteFillsBondAndOpensDisputeWindow(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)

	toReturn, err := m.Resolute(alice, 0, amount.New(1000), now)
	if err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if !toReturn.IsZero() {
		t.Fatalf("expected no overpay refund, got %s", toReturn.String())
	}
	if !m.Resoluted {
		t.Fatal("expected market to be resoluted once the bond is filled")
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 0 {
		t.Fatalf("winning outcome = %v, want 0", m.WinningOutcome)
	}
	if len(m.windows) != 2 {
		t.Fatalf("expected a new dispute window to open, got %d windows", len(m.windows))
	}
	dispute := m.windows[1]
	if dispute.Round != 1 {
		t.Fatalf("new window round = %d, want 1", dispute.Round)
	}
	if dispute.RequiredBondSize.Cmp(amount.New(2000)) != 0 {
		t.Fatalf("dispute bond = %s, want 2000 (double round-0 bond)", dispute.RequiredBondSize.String())
	}
}

func TestResoluteRefundsOverpay(t *testing.T) {
	m := newTestMarket(2)
	toReturn, err := m.Resolute(alice, 0, amount.New(1500), m.TradingEndTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if toReturn.Cmp(amount.New(500)) != 0 {
		t.Fatalf("overpay refund = %s, want 500", toReturn.String())
	}
}

func TestResoluteRejectsAfterResoluted(t *testing.T) {
	m := newTestMarket(2)
	if _, err := m.Resolute(alice, 0, amount.New(1000), m.TradingEndTime.Add(time.Minute)); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if _, err := m.Resolute(bob, 1, amount.New(1000), m.TradingEndTime.Add(time.Minute)); err != ErrMarketAlreadyResoluted {
		t.Fatalf("expected ErrMarketAlreadyResoluted, got %v", err)
	}
}

func TestDisputeEscalatesAndJudgeOverride(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)

	if _, err := m.Resolute(alice, 0, amount.New(1000), now); err != nil {
		t.Fatalf("resolute: %v", err)
	}

	// Disputing the same outcome that just won round 0 is rejected.
	if _, err := m.Dispute(bob, 0, amount.New(2000), now); err != ErrWrongDisputeOutcome {
		t.Fatalf("expected ErrWrongDisputeOutcome, got %v", err)
	}

	if _, err := m.Dispute(bob, 1, amount.New(2000), now); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if !m.Disputed {
		t.Fatal("expected market to be disputed once the round-1 bond is filled")
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 1 {
		t.Fatalf("winning outcome after dispute = %v, want 1", m.WinningOutcome)
	}

	// Finalizing before the window elapses requires the market's judge.
	if err := m.Finalize(alice, nil, now); err != ErrNotJudge {
		t.Fatalf("expected ErrNotJudge, got %v", err)
	}

	override := uint64(0)
	if err := m.Finalize(judge, &override, now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !m.Finalized {
		t.Fatal("expected market to be finalized")
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 0 {
		t.Fatalf("winning outcome after judge override = %v, want 0", m.WinningOutcome)
	}
}

func TestDisputeFillingBondOpensNextWindow(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)

	if _, err := m.Resolute(alice, 0, amount.New(1000), now); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if _, err := m.Dispute(bob, 1, amount.New(2000), now); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if !m.Disputed {
		t.Fatal("expected market to be disputed once the round-1 bond is filled")
	}
	if len(m.windows) != 3 {
		t.Fatalf("expected a round-2 window to open symmetrically with round-0's opening, got %d windows", len(m.windows))
	}
	next := m.windows[2]
	if next.Round != 2 {
		t.Fatalf("new window round = %d, want 2", next.Round)
	}
	if next.RequiredBondSize.Cmp(amount.New(4000)) != 0 {
		t.Fatalf("round-2 bond = %s, want 4000 (double round-1's bond)", next.RequiredBondSize.String())
	}
}

func TestFinalizeUndisputedRequiresWindowElapsed(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(alice, 0, amount.New(1000), now); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if err := m.Finalize(bob, nil, now); err != ErrNotFinalizeWindow {
		t.Fatalf("expected ErrNotFinalizeWindow, got %v", err)
	}
	later := m.CurrentWindow().EndTime.Add(time.Second)
	if err := m.Finalize(bob, nil, later); err != nil {
		t.Fatalf("finalize after window elapsed: %v", err)
	}
}

func TestFinalizeInvalidOverride(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)
	if _, err := m.Resolute(alice, 0, amount.New(1000), now); err != nil {
		t.Fatalf("resolute: %v", err)
	}
	if _, err := m.Dispute(bob, 1, amount.New(2000), now); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	invalidOutcome := m.InvalidOutcome()
	if err := m.Finalize(judge, &invalidOutcome, now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if m.WinningOutcome != nil {
		t.Fatalf("expected a nil winning outcome for an invalid ruling, got %v", *m.WinningOutcome)
	}
}

func TestWithdrawResolutionStakeRefundsLosingOutcome(t *testing.T) {
	m := newTestMarket(2)
	now := m.TradingEndTime.Add(time.Minute)

	// Alice stakes on outcome 1 first but bob's stake on outcome 0 fills the
	// bond, so round 0 resolves to outcome 0.
	if _, err := m.Resolute(alice, 1, amount.New(400), now); err != nil {
		t.Fatalf("resolute (alice): %v", err)
	}
	if _, err := m.Resolute(bob, 0, amount.New(1000), now); err != nil {
		t.Fatalf("resolute (bob): %v", err)
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 0 {
		t.Fatalf("winning outcome = %v, want 0", m.WinningOutcome)
	}

	refund, err := m.WithdrawResolutionStake(alice, 0, 1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if refund.Cmp(amount.New(400)) != 0 {
		t.Fatalf("refund = %s, want 400", refund.String())
	}

	if _, err := m.WithdrawResolutionStake(bob, 0, 0); err != ErrStakeOnFinalOutcome {
		t.Fatalf("expected ErrStakeOnFinalOutcome for the winning stake, got %v", err)
	}
}
