package market

import "errors"

var (
	ErrMarketInvalidOutcome   = errors.New("market: invalid outcome index")
	ErrMarketNotTrading       = errors.New("market: not open for trading")
	ErrMarketTradingEnded     = errors.New("market: trading window has ended")
	ErrMarketStillTrading     = errors.New("market: trading window has not ended yet")
	ErrDisputeWindowClosed    = errors.New("market: dispute window has closed")
	ErrMarketNotResoluted     = errors.New("market: not yet resoluted")
	ErrMarketAlreadyResoluted = errors.New("market: already resoluted")
	ErrMarketFinalized        = errors.New("market: already finalized")
	ErrNotFinalizeWindow      = errors.New("market: dispute window still open and caller is not the judge")
	ErrNotJudge               = errors.New("market: caller is not the market judge")
	ErrDisputeRoundExhausted  = errors.New("market: only one dispute round is permitted")
	ErrWrongDisputeOutcome    = errors.New("market: disputed outcome must differ from the current winning outcome")
	ErrZeroStake              = errors.New("market: stake must be positive")
	ErrNoStakeToWithdraw      = errors.New("market: no stake recorded for this outcome/round")
	ErrStakeOnFinalOutcome    = errors.New("market: cannot withdraw stake on the window's resolved outcome")
	ErrAlreadyClaimed         = errors.New("market: account already claimed earnings")
	ErrNothingToClaim         = errors.New("market: nothing to claim")
	ErrMarketNotFound         = errors.New("market: not found")
	ErrMarketExists           = errors.New("market: already registered")
	ErrInsufficientShares     = errors.New("market: insufficient shares to sell")
	ErrMinPriceNotMet         = errors.New("market: dynamic sell would clear below the minimum price")
	ErrInvalidPrice           = errors.New("market: price out of range [1,99]")
)
