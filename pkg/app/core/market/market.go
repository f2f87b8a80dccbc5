// Package market implements one prediction market's cross-outcome
// matching core, its resolution/dispute state machine, and the
// claim-computation engine that distributes winnings, governance
// rewards, and fees after finalization.
package market

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/orderbook"
)

// Status is the market's lifecycle phase. A market stays Trading, through
// the resolution game as well, until Finalize sets it to Finalized, after
// which it is read-only except for claims. Resolving is declared but no
// code path assigns it; resolution progress is tracked by the Resoluted and
// Disputed flags.
type Status int8

const (
	Trading Status = iota
	Resolving
	Finalized
)

func (s Status) String() string {
	switch s {
	case Trading:
		return "trading"
	case Resolving:
		return "resolving"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// FeeParams holds the basis-point fee percentages fixed at market
// creation.
type FeeParams struct {
	CreatorFeeBps    uint64
	ResolutionFeeBps uint64
	AffiliateFeeBps  uint64
}

// MaxFeeBps is a 5% fee ceiling in basis points. Market creation does not
// read it: pkg/app/protocol checks the creator fee alone against the
// configured params.Protocol.MaxFeeBps.
const MaxFeeBps = 500

// Market is one prediction market: a fixed number of discrete outcomes,
// one orderbook per outcome, a resolution/dispute escalation game, and a
// claim ledger keyed by account.
type Market struct {
	mu sync.Mutex

	ID      uint64
	Creator common.Address
	// Judge is the account allowed to finalize this market once disputed,
	// fixed at creation to the protocol owner of the time.
	Judge       common.Address
	NumOutcomes uint64

	Description string
	ExtraInfo   string
	OutcomeTags []string
	Categories  []string
	// ApiSource names the external data feed a market's question settles
	// against. Carried as opaque metadata for indexers; resolution itself
	// stays with the bonded escalation game.
	ApiSource string

	TradingEndTime time.Time
	CreationBond   *amount.Amount
	Fees           FeeParams

	Status Status

	// FilledVolume accumulates matched volume across every outcome's book
	// (shares_filled*100 for cross-outcome matches, shares_filled times the
	// average sell price for dynamic sells), and is the base the resolution
	// fee pool is computed from at claim time.
	FilledVolume *amount.Amount

	orderbooks map[uint64]*orderbook.Orderbook
	escrow     *ValidityEscrow
	windows    []*ResolutionWindow

	Resoluted           bool
	Disputed            bool
	Finalized           bool
	WinningOutcome      *uint64 // nil == invalid outcome
	ValidityBondClaimed bool

	claimed map[common.Address]struct{}
}

// New constructs a market with an empty orderbook per outcome and an open
// round-0 resolution window.
func New(id uint64, creator, judge common.Address, numOutcomes uint64, description, extraInfo string, outcomeTags, categories []string, apiSource string, tradingEnd time.Time, creationBond *amount.Amount, fees FeeParams, resolutionBondBase *amount.Amount) *Market {
	books := make(map[uint64]*orderbook.Orderbook, numOutcomes)
	for o := uint64(0); o < numOutcomes; o++ {
		books[o] = orderbook.New(id, o)
	}
	m := &Market{
		ID:             id,
		Creator:        creator,
		Judge:          judge,
		NumOutcomes:    numOutcomes,
		Description:    description,
		ExtraInfo:      extraInfo,
		OutcomeTags:    outcomeTags,
		Categories:     categories,
		ApiSource:      apiSource,
		TradingEndTime: tradingEnd,
		CreationBond:   creationBond,
		Fees:           fees,
		Status:         Trading,
		FilledVolume:   amount.New(0),
		orderbooks:     books,
		escrow:         newValidityEscrow(),
		claimed:        make(map[common.Address]struct{}),
	}
	m.windows = []*ResolutionWindow{newResolutionWindow(0, resolutionBondBase, tradingEnd)}
	return m
}

// Lock/Unlock expose the market's serialization mutex to callers in
// pkg/app/protocol, which holds it for the full duration of every public
// operation against this market (see the concurrency model).
func (m *Market) Lock()   { m.mu.Lock() }
func (m *Market) Unlock() { m.mu.Unlock() }

// Orderbook returns the book for the given outcome, or nil if out of
// range. InvalidOutcome (outcome index == NumOutcomes) has no book.
func (m *Market) Orderbook(outcome uint64) *orderbook.Orderbook {
	return m.orderbooks[outcome]
}

// InvalidOutcome is the sentinel outcome index meaning "market resolves
// invalid" wherever an outcome parameter is accepted.
func (m *Market) InvalidOutcome() uint64 {
	return m.NumOutcomes
}

func (m *Market) IsValidOutcome(outcome uint64) bool {
	return outcome <= m.NumOutcomes // NumOutcomes itself means "invalid"
}

// winningOutcomeOf translates the sentinel "invalid" outcome index into a
// nil pointer: nil means invalid, a non-nil index means that outcome won.
// Resolute/Dispute/Finalize all store outcomes through this so two
// resolved-invalid rounds compare equal.
func (m *Market) winningOutcomeOf(outcome uint64) *uint64 {
	if outcome == m.InvalidOutcome() {
		return nil
	}
	o := outcome
	return &o
}

// numericalOutcome is winningOutcomeOf's inverse: nil maps back to the
// sentinel invalid index, so stake lookups keyed by numeric outcome work
// for invalid resolutions too.
func (m *Market) numericalOutcome(o *uint64) uint64 {
	if o == nil {
		return m.InvalidOutcome()
	}
	return *o
}

func (m *Market) CurrentWindow() *ResolutionWindow {
	return m.windows[len(m.windows)-1]
}

func (m *Market) Window(round uint64) (*ResolutionWindow, bool) {
	for _, w := range m.windows {
		if w.Round == round {
			return w, true
		}
	}
	return nil, false
}

func (m *Market) alreadyClaimed(addr common.Address) bool {
	_, ok := m.claimed[addr]
	return ok
}

func (m *Market) markClaimed(addr common.Address) {
	m.claimed[addr] = struct{}{}
}
