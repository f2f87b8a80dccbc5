// Package protocol wires the matching/resolution/claim engine in
// pkg/app/core/market to the Token capability and the event stream,
// exposing one method per public operation. Every mutating method follows
// a two-phase reserve/commit pattern: it validates against current
// state, moves tokens through Token, and only then commits the engine
// mutation. There is no exposed partial commit.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/predimarket/engine/params"
	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/market"
	"github.com/predimarket/engine/pkg/util"
)

// ErrNotOwner rejects governance calls from anyone but the protocol's
// current owner.
var ErrNotOwner = errors.New("protocol: caller is not the protocol owner")

// Protocol is the top-level engine: a market registry, the token-move
// capability, the event bus, and the protocol-wide parameters bounding
// market creation.
type Protocol struct {
	registry *market.Registry
	token    Token
	events   *EventBus
	logger   *zap.Logger
	clock    util.Clock
	cfg      params.Protocol

	// owner is the protocol's governing account: the judge for disputed
	// markets, and the only account that may hand ownership on.
	owner common.Address

	// escrowAddr receives every reserved-but-not-yet-committed transfer:
	// order spend, resolution/dispute stakes. It is the protocol's own
	// custody account.
	escrowAddr common.Address

	// persist, if set, is invoked with a market's current state after
	// every successful mutation while its lock is still held.
	persist func(*market.Market)
}

// SetPersistHook installs the callback invoked after every mutation that
// changes a market's on-disk state, typically wired to
// pkg/storage.Store.SaveMarket.
func (p *Protocol) SetPersistHook(fn func(*market.Market)) {
	p.persist = fn
}

func (p *Protocol) save(m *market.Market) {
	if p.persist != nil {
		p.persist(m)
	}
}

func New(owner common.Address, token Token, logger *zap.Logger, cfg params.Protocol, escrowAddr common.Address) *Protocol {
	return &Protocol{
		registry:   market.NewRegistry(),
		token:      token,
		events:     NewEventBus(logger),
		logger:     logger,
		clock:      util.RealClock{},
		cfg:        cfg,
		owner:      owner,
		escrowAddr: escrowAddr,
	}
}

func (p *Protocol) Events() *EventBus { return p.events }

// Owner returns the protocol's current governing account.
func (p *Protocol) Owner() common.Address { return p.owner }

// ChangeOwner hands protocol ownership to a new account. Only the
// current owner may call it; markets already created keep the judge
// fixed at their creation.
func (p *Protocol) ChangeOwner(caller, newOwner common.Address) error {
	if caller != p.owner {
		return ErrNotOwner
	}
	p.logger.Info("protocol owner changed",
		zap.String("from", p.owner.Hex()),
		zap.String("to", newOwner.Hex()))
	p.owner = newOwner
	return nil
}

// TokenBalance reports an account's current token balance, used by
// pkg/api's account lookup endpoint.
func (p *Protocol) TokenBalance(ctx context.Context, addr common.Address) *amount.Amount {
	return p.token.BalanceOf(addr)
}

func (p *Protocol) Market(id uint64) (*market.Market, error) {
	return p.registry.Get(id)
}

func (p *Protocol) ListMarkets() []*market.Market {
	return p.registry.List()
}

// RestoreMarket installs a market rehydrated from storage into the
// registry, used once at node startup before serving any request.
func (p *Protocol) RestoreMarket(m *market.Market) {
	p.registry.Restore(m)
}

// CreateMarket validates creation parameters, escrows the creation bond,
// and registers a new market open for trading. The resolution fee is a
// protocol-wide constant (p.cfg.ResolutionFeeBps), not a caller input:
// only the creator and affiliate fees are set per market.
func (p *Protocol) CreateMarket(ctx context.Context, creator common.Address, numOutcomes uint64, description, extraInfo string, outcomeTags, categories []string, apiSource string, tradingEnd time.Time, creationBond *amount.Amount, creatorFeeBps, affiliateFeeBps uint64) (*market.Market, error) {
	if numOutcomes < 2 || numOutcomes > 8 {
		return nil, fmt.Errorf("protocol: numOutcomes must be in [2,8], got %d", numOutcomes)
	}
	if !tradingEnd.After(p.clock.Now()) {
		return nil, fmt.Errorf("protocol: trading end time must be in the future")
	}
	if len(description) > p.cfg.MaxDescriptionLen {
		return nil, fmt.Errorf("protocol: description exceeds %d characters", p.cfg.MaxDescriptionLen)
	}
	if len(extraInfo) > p.cfg.MaxExtraInfoLen {
		return nil, fmt.Errorf("protocol: extra_info exceeds %d characters", p.cfg.MaxExtraInfoLen)
	}
	if len(categories) > p.cfg.MaxCategories {
		return nil, fmt.Errorf("protocol: too many categories, max %d", p.cfg.MaxCategories)
	}
	for _, tag := range outcomeTags {
		if len(tag) > p.cfg.MaxTagLen {
			return nil, fmt.Errorf("protocol: outcome tag %q exceeds %d characters", tag, p.cfg.MaxTagLen)
		}
	}
	for _, cat := range categories {
		if len(cat) > p.cfg.MaxTagLen {
			return nil, fmt.Errorf("protocol: category %q exceeds %d characters", cat, p.cfg.MaxTagLen)
		}
	}
	if creatorFeeBps > p.cfg.MaxFeeBps {
		return nil, fmt.Errorf("protocol: creator_fee_bps exceeds max %d", p.cfg.MaxFeeBps)
	}
	if affiliateFeeBps > p.cfg.MaxAffiliateFeeBps {
		return nil, fmt.Errorf("protocol: affiliate_fee_bps exceeds max %d", p.cfg.MaxAffiliateFeeBps)
	}

	if err := p.token.Move(ctx, creator, p.escrowAddr, creationBond); err != nil {
		return nil, fmt.Errorf("protocol: creation bond transfer failed: %w", err)
	}

	fees := market.FeeParams{
		CreatorFeeBps:    creatorFeeBps,
		ResolutionFeeBps: p.cfg.ResolutionFeeBps,
		AffiliateFeeBps:  affiliateFeeBps,
	}
	bondBase := amount.New(p.cfg.ResolutionBondBase)
	m := p.registry.Register(func(id uint64) *market.Market {
		return market.New(id, creator, p.owner, numOutcomes, description, extraInfo, outcomeTags, categories, apiSource, tradingEnd, creationBond, fees, bondBase)
	})

	marketsOpenGauge.Inc()
	p.events.Emit(MarketCreated{MarketID: m.ID, Creator: creator, At: p.clock.Now()})
	p.emitBalance(ctx, creator)
	p.save(m)
	return m, nil
}

// PlaceOrder reserves spend from the caller, applies it against the
// cross-outcome matching core, and rests any remainder as a limit order.
func (p *Protocol) PlaceOrder(ctx context.Context, marketID, outcome uint64, creator common.Address, spend *amount.Amount, price uint64, affiliate *common.Address) (filledShares *amount.Amount, restingOrderID uint64, rested bool, err error) {
	if spend.Lt(amount.New(p.cfg.MinOrderSpend)) {
		return nil, 0, false, fmt.Errorf("protocol: spend below minimum order size")
	}

	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, 0, false, err
	}
	m.Lock()
	defer m.Unlock()

	if err := p.token.Move(ctx, creator, p.escrowAddr, spend); err != nil {
		return nil, 0, false, fmt.Errorf("protocol: spend transfer failed: %w", err)
	}

	filled, orderID, rested, touched, perr := m.PlaceOrder(creator, outcome, spend, price, affiliate, p.clock.Now())
	if perr != nil {
		// roll back the reservation: no engine mutation happened, refund.
		_ = p.token.Move(ctx, p.escrowAddr, creator, spend)
		return nil, 0, false, perr
	}

	ordersPlacedTotal.WithLabelValues(fmt.Sprint(marketID), fmt.Sprint(outcome)).Inc()
	if !filled.IsZero() {
		sharesFilledTotal.WithLabelValues(fmt.Sprint(marketID), fmt.Sprint(outcome)).Add(toFloat(filled))
		p.events.Emit(OrderFilledAtPlacement{MarketID: marketID, Outcome: outcome, Creator: creator, SharesFilled: filled, AvgPrice: price})
	}
	for _, f := range touched {
		if f.Closed {
			p.events.Emit(OrderClosed{MarketID: marketID, Outcome: f.Outcome, OrderID: uint64(f.OrderID), Creator: f.Creator, Price: f.Price, Shares: f.Shares})
		} else {
			p.events.Emit(OrderPartlyFilled{MarketID: marketID, Outcome: f.Outcome, OrderID: uint64(f.OrderID), Creator: f.Creator, Price: f.Price, Shares: f.Shares})
		}
	}
	if rested {
		p.events.Emit(OrderPlaced{MarketID: marketID, Outcome: outcome, OrderID: orderID, Creator: creator, Price: price, Spend: spend})
	}
	p.emitBalance(ctx, creator)
	p.save(m)
	return filled, orderID, rested, nil
}

// CancelOrder cancels a resting order and refunds its unspent escrow.
func (p *Protocol) CancelOrder(ctx context.Context, marketID, outcome, orderID uint64, caller common.Address) (*amount.Amount, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()

	refund, err := m.CancelOrder(outcome, orderID, caller)
	if err != nil {
		return nil, err
	}
	if err := p.token.Move(ctx, p.escrowAddr, caller, refund); err != nil {
		return nil, fmt.Errorf("protocol: refund transfer failed: %w", err)
	}

	p.events.Emit(OrderCancelled{MarketID: marketID, Outcome: outcome, OrderID: orderID, Creator: caller, Refund: refund})
	p.emitBalance(ctx, caller)
	p.save(m)
	return refund, nil
}

// DynamicMarketSell sells shares the caller already holds against resting
// buy orders in the same outcome's book and pays out the proceeds.
func (p *Protocol) DynamicMarketSell(ctx context.Context, marketID, outcome uint64, seller common.Address, shares *amount.Amount, minPrice uint64) (*amount.Amount, *amount.Amount, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, nil, err
	}
	m.Lock()
	defer m.Unlock()

	filled, proceeds, err := m.DynamicMarketSell(seller, outcome, shares, minPrice)
	if err != nil {
		return nil, nil, err
	}
	if filled.IsZero() {
		return filled, proceeds, nil
	}

	if err := p.token.Move(ctx, p.escrowAddr, seller, proceeds); err != nil {
		return nil, nil, fmt.Errorf("protocol: sell proceeds transfer failed: %w", err)
	}

	p.events.Emit(SharesSold{MarketID: marketID, Outcome: outcome, Seller: seller, Shares: filled, Proceeds: proceeds})
	p.emitBalance(ctx, seller)
	p.save(m)
	return filled, proceeds, nil
}

// ResoluteMarket stakes toward an outcome in the round-0 resolution
// window.
func (p *Protocol) ResoluteMarket(ctx context.Context, marketID, outcome uint64, staker common.Address, stake *amount.Amount) (*amount.Amount, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()

	if err := p.token.Move(ctx, staker, p.escrowAddr, stake); err != nil {
		return nil, fmt.Errorf("protocol: resolution stake transfer failed: %w", err)
	}

	toReturn, err := m.Resolute(staker, outcome, stake, p.clock.Now())
	if err != nil {
		_ = p.token.Move(ctx, p.escrowAddr, staker, stake)
		return nil, err
	}
	if !toReturn.IsZero() {
		_ = p.token.Move(ctx, p.escrowAddr, staker, toReturn)
	}
	p.events.Emit(StakedOnResolution{MarketID: marketID, Outcome: outcome, Staker: staker, Stake: stake})
	if m.Resoluted {
		marketsOpenGauge.Dec()
		resolutionWindowTransitionsTotal.WithLabelValues(fmt.Sprint(marketID), "0").Inc()
		p.events.Emit(MarketResoluted{MarketID: marketID, Outcome: outcome, Round: 0})
		next := m.CurrentWindow()
		p.events.Emit(NewResolutionWindow{MarketID: marketID, Round: next.Round, EndTime: next.EndTime})
	}
	p.emitBalance(ctx, staker)
	p.save(m)
	return toReturn, nil
}

// DisputeMarket stakes toward an outcome in the round-1 dispute window.
func (p *Protocol) DisputeMarket(ctx context.Context, marketID, outcome uint64, staker common.Address, stake *amount.Amount) (*amount.Amount, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()

	if err := p.token.Move(ctx, staker, p.escrowAddr, stake); err != nil {
		return nil, fmt.Errorf("protocol: dispute stake transfer failed: %w", err)
	}

	toReturn, err := m.Dispute(staker, outcome, stake, p.clock.Now())
	if err != nil {
		_ = p.token.Move(ctx, p.escrowAddr, staker, stake)
		return nil, err
	}
	if !toReturn.IsZero() {
		_ = p.token.Move(ctx, p.escrowAddr, staker, toReturn)
	}
	p.events.Emit(StakedOnDispute{MarketID: marketID, Outcome: outcome, Staker: staker, Stake: stake})
	if m.Disputed {
		resolutionWindowTransitionsTotal.WithLabelValues(fmt.Sprint(marketID), "1").Inc()
		p.events.Emit(MarketDisputed{MarketID: marketID, Outcome: outcome})
	}
	p.emitBalance(ctx, staker)
	p.save(m)
	return toReturn, nil
}

// FinalizeMarket closes resolution, optionally applying a judge override
// if the market was disputed.
func (p *Protocol) FinalizeMarket(ctx context.Context, marketID uint64, caller common.Address, judgeOverride *uint64) error {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()

	if err := m.Finalize(caller, judgeOverride, p.clock.Now()); err != nil {
		return err
	}
	p.events.Emit(MarketFinalized{MarketID: marketID, WinningOutcome: m.WinningOutcome})
	p.save(m)
	return nil
}

// WithdrawResolutionStake refunds a caller's stake on a round/outcome
// that did not become that window's resolved outcome.
func (p *Protocol) WithdrawResolutionStake(ctx context.Context, marketID, round, outcome uint64, caller common.Address) (*amount.Amount, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()

	refund, err := m.WithdrawResolutionStake(caller, round, outcome)
	if err != nil {
		return nil, err
	}
	if err := p.token.Move(ctx, p.escrowAddr, caller, refund); err != nil {
		return nil, fmt.Errorf("protocol: stake withdrawal transfer failed: %w", err)
	}
	p.events.Emit(DisputeWithdraw{MarketID: marketID, Round: round, Outcome: outcome, Staker: caller, Refund: refund})
	p.emitBalance(ctx, caller)
	p.save(m)
	return refund, nil
}

// ClaimEarnings computes and pays out one account's claim against a
// finalized market.
func (p *Protocol) ClaimEarnings(ctx context.Context, marketID uint64, claimant common.Address) (*market.ClaimResult, error) {
	m, err := p.registry.Get(marketID)
	if err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()

	result, err := m.ClaimEarnings(claimant)
	if err != nil {
		return nil, err
	}
	if err := p.token.Move(ctx, p.escrowAddr, claimant, result.Total); err != nil {
		return nil, fmt.Errorf("protocol: claim payout transfer failed: %w", err)
	}
	// The claimant is paid first, then the market creator receives their
	// fee share out of escrow. The claim itself stands even if the fee
	// transfer fails: the claimed set was already updated and the
	// claimant's payout has settled.
	if !result.CreatorFee.IsZero() {
		if err := p.token.Move(ctx, p.escrowAddr, m.Creator, result.CreatorFee); err != nil {
			p.logger.Error("creator fee transfer failed",
				zap.Uint64("market_id", marketID),
				zap.String("creator", m.Creator.Hex()),
				zap.Error(err))
		} else {
			p.emitBalance(ctx, m.Creator)
		}
	}

	claimsTotal.WithLabelValues(fmt.Sprint(marketID)).Inc()
	p.events.Emit(EarningsClaimed{MarketID: marketID, Account: claimant, Total: result.Total})
	p.emitBalance(ctx, claimant)
	p.save(m)
	return result, nil
}

// emitBalance broadcasts an account's current token balance, used after
// any operation that moves funds through the escrow account so UIs can
// update a user's balance without re-polling.
func (p *Protocol) emitBalance(ctx context.Context, addr common.Address) {
	p.events.Emit(UpdateUserBalance{Account: addr, Balance: p.token.BalanceOf(addr)})
}

func toFloat(a *amount.Amount) float64 {
	f := new(big.Float).SetInt(a.ToBig())
	out, _ := f.Float64()
	return out
}
