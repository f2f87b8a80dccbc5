package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/predimarket/engine/pkg/app/core/amount"
)

// Event is implemented by every structured event the protocol emits.
// Events are advisory, meant for indexers and UIs; they are not part of
// the state machine.
type Event interface {
	EventType() string
}

type MarketCreated struct {
	MarketID uint64
	Creator  common.Address
	At       time.Time
}

func (MarketCreated) EventType() string { return "market_creation" }

type OrderPlaced struct {
	MarketID uint64
	Outcome  uint64
	OrderID  uint64
	Creator  common.Address
	Price    uint64
	Spend    *amount.Amount
}

func (OrderPlaced) EventType() string { return "order_placed" }

type OrderFilledAtPlacement struct {
	MarketID     uint64
	Outcome      uint64
	Creator      common.Address
	SharesFilled *amount.Amount
	AvgPrice     uint64
}

func (OrderFilledAtPlacement) EventType() string { return "order_filled_at_placement" }

// OrderPartlyFilled reports a resting order on a sibling outcome's book
// that absorbed part of a cross-outcome match but still has liquidity
// left.
type OrderPartlyFilled struct {
	MarketID uint64
	Outcome  uint64
	OrderID  uint64
	Creator  common.Address
	Price    uint64
	Shares   *amount.Amount
}

func (OrderPartlyFilled) EventType() string { return "order_partly_filled" }

// OrderClosed reports a resting order fully consumed by a cross-outcome
// match (as opposed to OrderCancelled's voluntary withdrawal).
type OrderClosed struct {
	MarketID uint64
	Outcome  uint64
	OrderID  uint64
	Creator  common.Address
	Price    uint64
	Shares   *amount.Amount
}

func (OrderClosed) EventType() string { return "order_closed" }

// UpdateUserBalance reports an account's new token balance after any
// operation that moves funds through the escrow account.
type UpdateUserBalance struct {
	Account common.Address
	Balance *amount.Amount
}

func (UpdateUserBalance) EventType() string { return "update_user_balance" }

type OrderCancelled struct {
	MarketID uint64
	Outcome  uint64
	OrderID  uint64
	Creator  common.Address
	Refund   *amount.Amount
}

func (OrderCancelled) EventType() string { return "order_cancelled" }

type SharesSold struct {
	MarketID uint64
	Outcome  uint64
	Seller   common.Address
	Shares   *amount.Amount
	Proceeds *amount.Amount
}

func (SharesSold) EventType() string { return "shares_sold" }

type MarketResoluted struct {
	MarketID uint64
	Outcome  uint64
	Round    uint64
}

func (MarketResoluted) EventType() string { return "market_resoluted" }

type MarketDisputed struct {
	MarketID uint64
	Outcome  uint64
}

func (MarketDisputed) EventType() string { return "resolution_disputed" }

type MarketFinalized struct {
	MarketID       uint64
	WinningOutcome *uint64
}

func (MarketFinalized) EventType() string { return "finalized_market" }

type EarningsClaimed struct {
	MarketID uint64
	Account  common.Address
	Total    *amount.Amount
}

func (EarningsClaimed) EventType() string { return "earnings_claimed" }

// NewResolutionWindow reports that a market's round-0 bond filled and a
// new dispute window (round 1) opened.
type NewResolutionWindow struct {
	MarketID uint64
	Round    uint64
	EndTime  time.Time
}

func (NewResolutionWindow) EventType() string { return "new_resolution_window" }

// StakedOnResolution reports one stake placed in the round-0 resolution
// window, whether or not it fills the bond.
type StakedOnResolution struct {
	MarketID uint64
	Outcome  uint64
	Staker   common.Address
	Stake    *amount.Amount
}

func (StakedOnResolution) EventType() string { return "staked_on_resolution" }

// StakedOnDispute reports one stake placed in the round-1 dispute window.
type StakedOnDispute struct {
	MarketID uint64
	Outcome  uint64
	Staker   common.Address
	Stake    *amount.Amount
}

func (StakedOnDispute) EventType() string { return "staked_on_dispute" }

// DisputeWithdraw reports a stake withdrawn from a round/outcome that did
// not become that window's resolved outcome.
type DisputeWithdraw struct {
	MarketID uint64
	Round    uint64
	Outcome  uint64
	Staker   common.Address
	Refund   *amount.Amount
}

func (DisputeWithdraw) EventType() string { return "dispute_withdraw" }

// Broadcaster fans an event out to external subscribers (the websocket
// hub in pkg/api). Defined here rather than imported from pkg/api to
// avoid a dependency cycle between the engine and its transport layer.
type Broadcaster interface {
	Broadcast(event Event)
}

// EventBus logs every event at Info level and, if a Broadcaster is
// attached, forwards it to websocket subscribers.
type EventBus struct {
	logger      *zap.Logger
	broadcaster Broadcaster
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{logger: logger}
}

func (b *EventBus) SetBroadcaster(bc Broadcaster) {
	b.broadcaster = bc
}

func (b *EventBus) Emit(event Event) {
	b.logger.Info(event.EventType(), zap.Any("event", event))
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(event)
	}
}
