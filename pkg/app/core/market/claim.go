package market

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// ClaimResult is the fully-computed payout for one account's claim
// against a finalized market, split into its components so that only
// the feeable portion is taxed.
type ClaimResult struct {
	Winnings           *amount.Amount // feeable: redemption value or invalid-market refund
	ClaimableIfInvalid *amount.Amount // feeable: validity-escrow spread owed on an invalid resolution
	ClaimableIfValid   *amount.Amount // not feeable: validity-escrow spread owed on a valid resolution
	GovernanceEarnings *amount.Amount // not feeable: dispute-game reward
	InOpenOrders       *amount.Amount // not feeable: refund of funds still resting in open orders
	ValidityBond       *amount.Amount // not feeable: creator's bond, paid once
	ResolutionFee      *amount.Amount
	CreatorFee         *amount.Amount
	Total              *amount.Amount
}

// ClaimEarnings computes and records one account's claim against a
// finalized market. It may be called at most once per account: the
// guard fails the call if the account is already in the claimed set,
// then marks it claimed before any payout math runs. The round-0
// resolution fee pool correct stakers split is the resolution fee taken
// on the market's total filled volume, computed here rather than
// threaded in by the caller.
func (m *Market) ClaimEarnings(addr common.Address) (*ClaimResult, error) {
	if !m.Finalized {
		return nil, ErrMarketNotResoluted
	}
	if m.alreadyClaimed(addr) {
		return nil, ErrAlreadyClaimed
	}
	m.markClaimed(addr)

	invalid := m.WinningOutcome == nil

	winnings := amount.New(0)
	if invalid {
		for o := uint64(0); o < m.NumOutcomes; o++ {
			if acc := m.orderbooks[o].Account(addr); acc != nil {
				winnings = amount.Add(winnings, acc.Spent)
			}
		}
	} else if acc := m.orderbooks[*m.WinningOutcome].Account(addr); acc != nil {
		winnings = amount.Add(winnings, amount.Mul(acc.Balance, amount.New(100)))
	}

	inOpenOrders := amount.New(0)
	for o := uint64(0); o < m.NumOutcomes; o++ {
		if acc := m.orderbooks[o].Account(addr); acc != nil {
			inOpenOrders = amount.Add(inOpenOrders, acc.ToSpend)
		}
	}

	claimableIfInvalid := amount.New(0)
	claimableIfValid := amount.New(0)
	if invalid {
		claimableIfInvalid = m.escrow.GetOwed(addr, false)
	} else {
		claimableIfValid = m.escrow.GetOwed(addr, true)
	}

	validityBond := amount.New(0)
	if addr == m.Creator && !m.ValidityBondClaimed && m.WinningOutcome != nil {
		validityBond = m.CreationBond
		m.ValidityBondClaimed = true
	}

	resolutionFeePool := m.calcResolutionFee(m.FilledVolume)
	governanceEarnings := m.getDisputeEarnings(addr, resolutionFeePool)

	totalFeeable := amount.Add(winnings, claimableIfInvalid)
	resolutionFee := m.calcResolutionFee(totalFeeable)
	creatorFee := amount.New(0)
	if !invalid {
		creatorFee = m.calcCreatorFee(totalFeeable)
	}
	totalFee := amount.Add(resolutionFee, creatorFee)

	total := amount.Add(
		amount.Add(
			amount.Add(totalFeeable, governanceEarnings),
			amount.Add(inOpenOrders, validityBond),
		),
		claimableIfValid,
	)
	total = amount.Sub(total, totalFee)

	if total.IsZero() {
		return nil, ErrNothingToClaim
	}

	return &ClaimResult{
		Winnings:           winnings,
		ClaimableIfInvalid: claimableIfInvalid,
		ClaimableIfValid:   claimableIfValid,
		GovernanceEarnings: governanceEarnings,
		InOpenOrders:       inOpenOrders,
		ValidityBond:       validityBond,
		ResolutionFee:      resolutionFee,
		CreatorFee:         creatorFee,
		Total:              total,
	}, nil
}

// getDisputeEarnings implements the dispute-game reward distribution
// (get_dispute_earnings): round-0 stakers who bonded the eventual winning
// outcome get their stake back plus resolutionFeePool split pro-rata to
// their stake; stakers in any dispute round (round >= 1) who bonded the
// eventual winner split the bonds (and, for a round-0 loss, the
// resolution fee pool alongside it) forfeited by every round that bonded
// a loser, using amount.EarningsPrecision headroom to avoid truncating
// small stakes.
//
// A round that bonded "invalid" counts as correct when the market
// finalized invalid, with stakes recorded under the numeric invalid
// index. In rounds >= 1 the same numeric comparison folds the
// still-open final window in when the market finalized invalid, so
// stakes it collected toward "invalid" before finalization share in the
// redistribution.
func (m *Market) getDisputeEarnings(addr common.Address, resolutionFeePool *amount.Amount) *amount.Amount {
	totalCorrectlyStaked := amount.New(0)
	userCorrectlyStaked := amount.New(0)
	totalIncorrectlyStaked := amount.New(0)
	resolutionReward := amount.New(0)

	winningIdx := m.numericalOutcome(m.WinningOutcome)

	for _, w := range m.windows {
		if w.Round == 0 {
			if sameOutcome(w.Outcome, m.WinningOutcome) {
				userStake := w.stakeOf(addr, winningIdx)
				totalStake := w.stakedOnOutcome(winningIdx)
				if !totalStake.IsZero() && !userStake.IsZero() {
					resolutionReward = amount.Add(userStake, amount.DivFloor(amount.Mul(userStake, resolutionFeePool), totalStake))
				}
			} else {
				totalIncorrectlyStaked = amount.Add(totalIncorrectlyStaked, amount.Add(resolutionFeePool, w.RequiredBondSize))
			}
			continue
		}

		if m.numericalOutcome(w.Outcome) == winningIdx {
			totalCorrectlyStaked = amount.Add(totalCorrectlyStaked, w.RequiredBondSize)
			userCorrectlyStaked = amount.Add(userCorrectlyStaked, w.stakeOf(addr, winningIdx))
		} else if w.Outcome != nil {
			totalIncorrectlyStaked = amount.Add(totalIncorrectlyStaked, w.RequiredBondSize)
		}
	}

	if totalCorrectlyStaked.IsZero() {
		return resolutionReward
	}

	pct := amount.DivFloor(amount.Mul(userCorrectlyStaked, amount.New(amount.EarningsPrecision)), totalCorrectlyStaked)
	profit := amount.DivFloor(amount.Mul(pct, totalIncorrectlyStaked), amount.New(amount.EarningsPrecision))

	return amount.Add(amount.Add(profit, userCorrectlyStaked), resolutionReward)
}
