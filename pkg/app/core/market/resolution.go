package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// disputeWindowDuration is how long a new resolution window stays open
// once opened by a filled bond.
const disputeWindowDuration = 30 * time.Minute

// maxDisputeRounds caps the escalation game at a single dispute round
// (round 0 = initial resolution, round 1 = one dispute), per the
// "only one dispute round is permitted in this version" design note.
const maxDisputeRounds = 1

// ResolutionWindow is one round of the bonded resolution/dispute game.
type ResolutionWindow struct {
	Round              uint64
	RequiredBondSize   *amount.Amount
	EndTime            time.Time
	StakedPerOutcome   map[uint64]*amount.Amount
	ParticipantStakes  map[common.Address]map[uint64]*amount.Amount
	Outcome            *uint64 // set once this round's bond is filled
}

func newResolutionWindow(round uint64, bond *amount.Amount, endTime time.Time) *ResolutionWindow {
	return &ResolutionWindow{
		Round:             round,
		RequiredBondSize:  bond,
		EndTime:           endTime,
		StakedPerOutcome:  make(map[uint64]*amount.Amount),
		ParticipantStakes: make(map[common.Address]map[uint64]*amount.Amount),
	}
}

func (w *ResolutionWindow) stakeOf(addr common.Address, outcome uint64) *amount.Amount {
	byOutcome, ok := w.ParticipantStakes[addr]
	if !ok {
		return amount.New(0)
	}
	if v, ok := byOutcome[outcome]; ok {
		return v
	}
	return amount.New(0)
}

func (w *ResolutionWindow) stakedOnOutcome(outcome uint64) *amount.Amount {
	if v, ok := w.StakedPerOutcome[outcome]; ok {
		return v
	}
	return amount.New(0)
}

func (w *ResolutionWindow) recordStake(addr common.Address, outcome uint64, stake *amount.Amount) {
	w.StakedPerOutcome[outcome] = amount.Add(w.stakedOnOutcome(outcome), stake)
	if w.ParticipantStakes[addr] == nil {
		w.ParticipantStakes[addr] = make(map[uint64]*amount.Amount)
	}
	w.ParticipantStakes[addr][outcome] = amount.Add(w.stakeOf(addr, outcome), stake)
}

// Resolute implements the round-0 bonded resolution step: stake accrues
// toward a single outcome until the round's bond is filled, at which
// point the window closes and a new dispute window opens at double the
// bond size. now is the caller-supplied wall-clock time (injected so
// tests are deterministic, matching pkg/util.Clock elsewhere in the
// stack). Returns the portion of stake that overpaid the bond and should
// be refunded to the caller.
func (m *Market) Resolute(addr common.Address, outcome uint64, stake *amount.Amount, now time.Time) (*amount.Amount, error) {
	if !m.IsValidOutcome(outcome) {
		return nil, ErrMarketInvalidOutcome
	}
	if now.Before(m.TradingEndTime) {
		return nil, ErrMarketStillTrading
	}
	if m.Resoluted {
		return nil, ErrMarketAlreadyResoluted
	}
	if stake.IsZero() {
		return nil, ErrZeroStake
	}
	window := m.windows[0]
	if window.Round != 0 {
		return nil, ErrMarketAlreadyResoluted
	}

	toReturn := amount.New(0)
	alreadyStaked := window.stakedOnOutcome(outcome)
	total := amount.Add(alreadyStaked, stake)
	if total.Gt(window.RequiredBondSize) {
		toReturn = amount.Sub(total, window.RequiredBondSize)
		stake = amount.Sub(stake, toReturn)
		total = window.RequiredBondSize
	}

	window.recordStake(addr, outcome, stake)

	if total.Cmp(window.RequiredBondSize) >= 0 {
		m.Resoluted = true
		window.Outcome = m.winningOutcomeOf(outcome)
		m.WinningOutcome = m.winningOutcomeOf(outcome)
		nextBond := amount.Mul(window.RequiredBondSize, amount.New(2))
		m.windows = append(m.windows, newResolutionWindow(1, nextBond, now.Add(disputeWindowDuration)))
	}

	return toReturn, nil
}

// Dispute implements round-1 of the escalation game: it stakes against
// the round-0 winning outcome in the same way Resolute stakes round 0.
// Once this round's (doubled) bond is filled, the market is marked
// disputed and the new outcome becomes the tentative winner pending
// judge finalization.
func (m *Market) Dispute(addr common.Address, outcome uint64, stake *amount.Amount, now time.Time) (*amount.Amount, error) {
	if !m.Resoluted {
		return nil, ErrMarketNotResoluted
	}
	if m.Finalized {
		return nil, ErrMarketFinalized
	}
	if !m.IsValidOutcome(outcome) {
		return nil, ErrMarketInvalidOutcome
	}
	if stake.IsZero() {
		return nil, ErrZeroStake
	}
	window := m.CurrentWindow()
	if window.Round != 1 {
		return nil, ErrDisputeRoundExhausted
	}
	if !now.Before(window.EndTime) {
		return nil, ErrDisputeWindowClosed
	}
	if sameOutcome(m.WinningOutcome, m.winningOutcomeOf(outcome)) {
		return nil, ErrWrongDisputeOutcome
	}

	toReturn := amount.New(0)
	alreadyStaked := window.stakedOnOutcome(outcome)
	total := amount.Add(alreadyStaked, stake)
	if total.Gt(window.RequiredBondSize) {
		toReturn = amount.Sub(total, window.RequiredBondSize)
		stake = amount.Sub(stake, toReturn)
		total = window.RequiredBondSize
	}

	window.recordStake(addr, outcome, stake)

	if total.Cmp(window.RequiredBondSize) >= 0 {
		m.Disputed = true
		window.Outcome = m.winningOutcomeOf(outcome)
		m.WinningOutcome = m.winningOutcomeOf(outcome)
		nextBond := amount.Mul(window.RequiredBondSize, amount.New(2))
		m.windows = append(m.windows, newResolutionWindow(window.Round+1, nextBond, now.Add(disputeWindowDuration)))
	}

	return toReturn, nil
}

// sameOutcome reports whether two possibly-nil outcome pointers represent
// the same resolved outcome, nil-equals-nil (both invalid) included.
func sameOutcome(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Finalize closes resolution. If the market was disputed, only the judge
// may finalize, and may override the winning outcome with an external
// ruling. If undisputed, anyone may finalize once the round-1 window's
// end time has passed.
func (m *Market) Finalize(caller common.Address, judgeOverride *uint64, now time.Time) error {
	if !m.Resoluted {
		return ErrMarketNotResoluted
	}
	if m.Finalized {
		return ErrMarketFinalized
	}
	window := m.CurrentWindow()
	if m.Disputed {
		if caller != m.Judge {
			return ErrNotJudge
		}
		if judgeOverride != nil {
			m.WinningOutcome = m.winningOutcomeOf(*judgeOverride)
		}
	} else if now.Before(window.EndTime) && window.Round < maxDisputeRounds+1 {
		return ErrNotFinalizeWindow
	}
	m.Finalized = true
	m.Status = Finalized
	return nil
}

// WithdrawResolutionStake zeroes the caller's stake on an outcome/round
// that did not become the window's resolved outcome, returning the
// amount to refund.
func (m *Market) WithdrawResolutionStake(addr common.Address, round, outcome uint64) (*amount.Amount, error) {
	window, ok := m.Window(round)
	if !ok {
		return nil, ErrMarketInvalidOutcome
	}
	if sameOutcome(window.Outcome, m.winningOutcomeOf(outcome)) {
		return nil, ErrStakeOnFinalOutcome
	}
	stake := window.stakeOf(addr, outcome)
	if stake.IsZero() {
		return nil, ErrNoStakeToWithdraw
	}
	window.ParticipantStakes[addr][outcome] = amount.New(0)
	window.StakedPerOutcome[outcome] = amount.Sub(window.stakedOnOutcome(outcome), stake)
	return stake, nil
}
