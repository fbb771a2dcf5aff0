// Package funding implements periodic funding settlement: a payment
// between longs and shorts proportional to the gap between mark price
// and each position's entry price, applied to collateral under either
// cross or isolated margin.
package funding

import (
	"log/slog"
	"time"

	"perpcore/internal/errs"
	"perpcore/pkg/types"
)

// Settler applies funding flows to margin accounts.
type Settler struct {
	logger *slog.Logger
}

// New builds a Settler.
func New(logger *slog.Logger) *Settler {
	return &Settler{logger: logger.With("component", "funding")}
}

// positionFunding computes ((mark-entry)*qty)/entry, truncating toward
// zero, then applies the sign convention: a long (Bid) pays when mark has
// risen above entry, so its contribution is negated; a short (Ask) is
// credited that same amount.
func positionFunding(mark int64, pos types.Position) int64 {
	entry := int64(pos.EntryPrice)
	if entry == 0 {
		return 0
	}
	diff := mark - entry
	raw := (diff * int64(pos.Qty)) / entry
	if pos.Side == types.Bid {
		return -raw
	}
	return raw
}

func applySignedFunding(collateral uint64, net int64) (uint64, error) {
	if net < 0 {
		magnitude := uint64(-net)
		if collateral < magnitude {
			return 0, errs.ErrInsufficientCollateral
		}
		return collateral - magnitude, nil
	}
	return collateral + uint64(net), nil
}

// Settle applies funding to margin at the given mark price and advances
// market.LastFundingTime to now. Cross accounts pool funding across all
// positions into a single collateral adjustment; isolated accounts apply
// funding per-position against that position's own collateral.
func (s *Settler) Settle(market *types.Market, margin *types.MarginAccount, mark int64, now time.Time) error {
	if margin.MarginType == types.Isolated {
		for i := range margin.Positions {
			pos := &margin.Positions[i]
			funding := positionFunding(mark, *pos)
			updated, err := applySignedFunding(pos.Collateral, funding)
			if err != nil {
				return err
			}
			pos.Collateral = updated
		}
	} else {
		var net int64
		for _, pos := range margin.Positions {
			net += positionFunding(mark, pos)
		}
		updated, err := applySignedFunding(margin.Collateral, net)
		if err != nil {
			return err
		}
		margin.Collateral = updated
	}

	market.LastFundingTime = now.Unix()
	s.logger.Debug("funding settled", "owner", margin.Owner, "mark", mark)
	return nil
}
