package market

import "github.com/predimarket/engine/pkg/app/core/amount"

// calcCreatorFee and calcResolutionFee use ceiling division at
// amount.PercentagePrecision, so a fee never rounds down to zero on a
// nonzero feeable amount.
func (m *Market) calcCreatorFee(feeable *amount.Amount) *amount.Amount {
	return amount.BpsOfCeil(feeable, m.Fees.CreatorFeeBps)
}

func (m *Market) calcResolutionFee(feeable *amount.Amount) *amount.Amount {
	return amount.BpsOfCeil(feeable, m.Fees.ResolutionFeeBps)
}
