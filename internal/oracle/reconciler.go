// Package oracle implements dual-oracle mark-price reconciliation: read a
// primary feed gated by publish-time staleness, read a secondary feed
// gated by slot staleness and sample count, average the two within a
// deviation band, and fall back to the primary outside that band. This
// resists a single compromised feed without introducing gaps when the
// two feeds briefly diverge.
package oracle

import (
	"context"
	"time"

	"perpcore/internal/errs"
)

// MaxDeviationBps is the deviation band within which the primary and
// secondary samples are averaged; outside it, the primary wins.
const MaxDeviationBps = 50

// PrimarySample is a Pyth-style reading: a signed scaled price and the
// wall-clock time it was published.
type PrimarySample struct {
	Value       int64
	PublishedAt time.Time
}

// SecondarySample is a Switchboard-style reading: mantissa*10^Scale,
// staleness-gated by slot age and aggregator sample count rather than
// wall-clock time.
type SecondarySample struct {
	Mantissa   int64
	Scale      int32
	Slot       uint64
	NumSamples int
}

// ScaledValue returns Mantissa*10^Scale as an int64.
func (s SecondarySample) ScaledValue() int64 {
	if s.Scale == 0 {
		return s.Mantissa
	}
	if s.Scale > 0 {
		v := s.Mantissa
		for i := int32(0); i < s.Scale; i++ {
			v *= 10
		}
		return v
	}
	v := s.Mantissa
	for i := int32(0); i < -s.Scale; i++ {
		v /= 10
	}
	return v
}

// PrimaryReader reads the primary (Pyth-style) oracle feed.
type PrimaryReader interface {
	Read(ctx context.Context) (PrimarySample, error)
}

// SecondaryReader reads the secondary (Switchboard-style) oracle feed.
type SecondaryReader interface {
	Read(ctx context.Context) (SecondarySample, error)
}

// Config tunes the reconciler's staleness and consensus thresholds.
type Config struct {
	MaxAge       time.Duration // primary feed publish-time staleness bound
	MaxStaleSlots uint64       // secondary feed slot-age staleness bound
	MinSamples    int          // secondary feed minimum aggregator samples
}

// Reconciler computes a resilient mark price from two independent oracle
// feeds.
type Reconciler struct {
	cfg       Config
	primary   PrimaryReader
	secondary SecondaryReader
}

// New builds a Reconciler over the given feeds and thresholds.
func New(cfg Config, primary PrimaryReader, secondary SecondaryReader) *Reconciler {
	return &Reconciler{cfg: cfg, primary: primary, secondary: secondary}
}

// MarkPrice reads both feeds, rejects either if stale, and reconciles
// them into a single mark price. currentSlot is the caller's monotonic
// slot counter, used to gate the secondary feed's staleness the same way
// the primary is gated by wall-clock publish time.
func (r *Reconciler) MarkPrice(ctx context.Context, now time.Time, currentSlot uint64) (int64, error) {
	primary, err := r.primary.Read(ctx)
	if err != nil {
		return 0, errs.ErrInvalidPriceFeed
	}
	if now.Sub(primary.PublishedAt) > r.cfg.MaxAge {
		return 0, errs.ErrStalePrice
	}

	secondary, err := r.secondary.Read(ctx)
	if err != nil {
		return 0, errs.ErrInvalidPriceFeed
	}
	if currentSlot >= secondary.Slot && currentSlot-secondary.Slot > r.cfg.MaxStaleSlots {
		return 0, errs.ErrInvalidPriceFeed
	}
	if secondary.NumSamples < r.cfg.MinSamples {
		return 0, errs.ErrInvalidPriceFeed
	}

	secondaryValue := secondary.ScaledValue()
	deviationBps := deviationBps(primary.Value, secondaryValue)
	if deviationBps <= MaxDeviationBps {
		return (primary.Value + secondaryValue) / 2, nil
	}
	return primary.Value, nil
}

func deviationBps(primary, secondary int64) int64 {
	diff := primary - secondary
	if diff < 0 {
		diff = -diff
	}
	if primary == 0 {
		return 10_000
	}
	abs := primary
	if abs < 0 {
		abs = -abs
	}
	return diff * 10_000 / abs
}
