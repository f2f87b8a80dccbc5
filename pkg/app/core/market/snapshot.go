package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predimarket/engine/pkg/app/core/amount"
	"github.com/predimarket/engine/pkg/app/core/orderbook"
)

// WindowSnapshot is the JSON-serializable form of a ResolutionWindow.
type WindowSnapshot struct {
	Round             uint64
	RequiredBondSize  *amount.Amount
	EndTime           time.Time
	StakedPerOutcome  map[uint64]*amount.Amount
	ParticipantStakes map[common.Address]map[uint64]*amount.Amount
	Outcome           *uint64
}

// Snapshot is the JSON-serializable form of a Market's metadata and
// resolution state, persisted under "market:{id}:meta". Orderbook state
// is persisted separately per outcome (see orderbook.Snapshot).
type Snapshot struct {
	ID             uint64
	Creator        common.Address
	Judge          common.Address
	NumOutcomes    uint64
	Description    string
	ExtraInfo      string
	OutcomeTags    []string
	Categories     []string
	ApiSource      string
	TradingEndTime time.Time
	CreationBond   *amount.Amount
	Fees           FeeParams
	Status         Status
	FilledVolume   *amount.Amount

	Resoluted           bool
	Disputed            bool
	Finalized           bool
	WinningOutcome      *uint64
	ValidityBondClaimed bool

	Windows            []WindowSnapshot
	ClaimableIfValid   map[common.Address]*amount.Amount
	ClaimableIfInvalid map[common.Address]*amount.Amount
	Claimed            map[common.Address]struct{}
}

func (m *Market) Snapshot() Snapshot {
	windows := make([]WindowSnapshot, 0, len(m.windows))
	for _, w := range m.windows {
		windows = append(windows, WindowSnapshot{
			Round:             w.Round,
			RequiredBondSize:  w.RequiredBondSize,
			EndTime:           w.EndTime,
			StakedPerOutcome:  w.StakedPerOutcome,
			ParticipantStakes: w.ParticipantStakes,
			Outcome:           w.Outcome,
		})
	}
	return Snapshot{
		ID:                  m.ID,
		Creator:             m.Creator,
		Judge:               m.Judge,
		NumOutcomes:         m.NumOutcomes,
		Description:         m.Description,
		ExtraInfo:           m.ExtraInfo,
		OutcomeTags:         m.OutcomeTags,
		Categories:          m.Categories,
		ApiSource:           m.ApiSource,
		TradingEndTime:      m.TradingEndTime,
		CreationBond:        m.CreationBond,
		Fees:                m.Fees,
		Status:              m.Status,
		FilledVolume:        m.FilledVolume,
		Resoluted:           m.Resoluted,
		Disputed:            m.Disputed,
		Finalized:           m.Finalized,
		WinningOutcome:      m.WinningOutcome,
		ValidityBondClaimed: m.ValidityBondClaimed,
		Windows:             windows,
		ClaimableIfValid:    m.escrow.claimableIfValid,
		ClaimableIfInvalid:  m.escrow.claimableIfInvalid,
		Claimed:             m.claimed,
	}
}

// FromSnapshot rebuilds a market's metadata/resolution state. Orderbooks
// must be attached separately via AttachOrderbook after construction.
func FromSnapshot(s Snapshot) *Market {
	m := &Market{
		ID:                  s.ID,
		Creator:             s.Creator,
		Judge:               s.Judge,
		NumOutcomes:         s.NumOutcomes,
		Description:         s.Description,
		ExtraInfo:           s.ExtraInfo,
		OutcomeTags:         s.OutcomeTags,
		Categories:          s.Categories,
		ApiSource:           s.ApiSource,
		TradingEndTime:      s.TradingEndTime,
		CreationBond:        s.CreationBond,
		Fees:                s.Fees,
		Status:              s.Status,
		FilledVolume:        s.FilledVolume,
		orderbooks:          make(map[uint64]*orderbook.Orderbook, s.NumOutcomes),
		Resoluted:           s.Resoluted,
		Disputed:            s.Disputed,
		Finalized:           s.Finalized,
		WinningOutcome:      s.WinningOutcome,
		ValidityBondClaimed: s.ValidityBondClaimed,
		claimed:             s.Claimed,
	}
	if m.FilledVolume == nil {
		m.FilledVolume = amount.New(0)
	}
	m.escrow = &ValidityEscrow{
		claimableIfValid:   s.ClaimableIfValid,
		claimableIfInvalid: s.ClaimableIfInvalid,
	}
	if m.escrow.claimableIfValid == nil {
		m.escrow.claimableIfValid = make(map[common.Address]*amount.Amount)
	}
	if m.escrow.claimableIfInvalid == nil {
		m.escrow.claimableIfInvalid = make(map[common.Address]*amount.Amount)
	}
	if m.claimed == nil {
		m.claimed = make(map[common.Address]struct{})
	}
	for _, ws := range s.Windows {
		m.windows = append(m.windows, &ResolutionWindow{
			Round:             ws.Round,
			RequiredBondSize:  ws.RequiredBondSize,
			EndTime:           ws.EndTime,
			StakedPerOutcome:  ws.StakedPerOutcome,
			ParticipantStakes: ws.ParticipantStakes,
			Outcome:           ws.Outcome,
		})
	}
	return m
}

// AttachOrderbook installs a restored book for one outcome, used when
// reloading a market from persisted state.
func (m *Market) AttachOrderbook(outcome uint64, b *orderbook.Orderbook) {
	m.orderbooks[outcome] = b
}
