package patscan

import (
	"errors"
	"fmt"
)

// Pruner is a cheap rejection test consulted before the expensive classifier.
// A pruner decides reject/accept for a candidate sub-window using only the
// precomputed summary data it was bound to. Pruners are independent and the
// scan consults them in a fixed order, rejecting a sub-window as soon as any
// pruner rejects it.
type Pruner interface {
	// Bind attaches the pruner to the summary images of the current scan level.
	Bind(ss *SummarySet) error
	// Rejects decides whether the sub-window cannot contain the pattern.
	Rejects(x, y, w, h int) (bool, error)
}

// PrunerCloner is implemented by pruners that can produce an unbound copy
// of themselves, allowing the scan to be sharded across workers.
type PrunerCloner interface {
	Clone() Pruner
}

// VariancePruner rejects sub-windows whose pixel mean or standard deviation
// falls outside the configured acceptance bounds. Either test can be disabled
// independently; with both disabled the pruner always accepts.
//
// The bounds are configured per pixel and rescaled by the window area whenever
// the window size changes, so the per-window work stays at two summary queries.
// The standard deviation bounds are kept squared and pre-scaled by area² which
// avoids a square root per window.
type VariancePruner struct {
	UseMean  bool
	UseStdev bool

	MinMean  float64
	MaxMean  float64
	MinStdev float64
	MaxStdev float64

	ss *SummarySet

	// factors recomputed on window size change only
	swW, swH       int
	area           float64
	scaledMinMean  float64
	scaledMaxMean  float64
	squareMinStdev float64
	squareMaxStdev float64
}

// NewVariancePruner returns a variance pruner with the tests and bounds
// taken from the scan configuration.
func NewVariancePruner(cfg Config) *VariancePruner {
	return &VariancePruner{
		UseMean:  cfg.PruneUseMean,
		UseStdev: cfg.PruneUseStdev,
		MinMean:  cfg.MinMean,
		MaxMean:  cfg.MaxMean,
		MinStdev: cfg.MinStdev,
		MaxStdev: cfg.MaxStdev,
	}
}

// Bind attaches the pruner to the summary images of the current level
// and resets the cached window size factors.
func (p *VariancePruner) Bind(ss *SummarySet) error {
	if ss == nil || ss.Mean == nil {
		return errors.New("variance pruner: missing summary image")
	}
	if p.UseStdev && ss.Square == nil {
		return errors.New("variance pruner: the standard deviation test needs a squared summary image")
	}
	p.ss = ss
	p.swW, p.swH = 0, 0
	return nil
}

// Rejects runs the enabled tests on the sub-window.
func (p *VariancePruner) Rejects(x, y, w, h int) (bool, error) {
	if !p.UseMean && !p.UseStdev {
		return false, nil
	}
	if p.ss == nil {
		return false, errors.New("variance pruner: not bound to a summary set")
	}
	if !p.ss.Mean.InBounds(x, y, w, h) {
		return false, fmt.Errorf("variance pruner: sub-window (%d,%d %dx%d) out of the %dx%d grid",
			x, y, w, h, p.ss.Mean.Width(), p.ss.Mean.Height())
	}

	if w != p.swW || h != p.swH {
		p.swW, p.swH = w, h
		p.area = float64(w * h)
		p.scaledMinMean = p.MinMean * p.area
		p.scaledMaxMean = p.MaxMean * p.area
		p.squareMinStdev = p.MinStdev * p.MinStdev * p.area * p.area
		p.squareMaxStdev = p.MaxStdev * p.MaxStdev * p.area * p.area
	}

	sum := p.ss.Mean.Sum(x, y, w, h)
	if p.UseMean && (sum < p.scaledMinMean || sum > p.scaledMaxMean) {
		return true, nil
	}
	if p.UseStdev {
		sqSum := p.ss.Square.Sum(x, y, w, h)
		squareStdev := sqSum*p.area - sum*sum
		if squareStdev < p.squareMinStdev || squareStdev > p.squareMaxStdev {
			return true, nil
		}
	}
	return false, nil
}

// Clone returns an unbound copy of the pruner carrying the same bounds.
func (p *VariancePruner) Clone() Pruner {
	return &VariancePruner{
		UseMean:  p.UseMean,
		UseStdev: p.UseStdev,
		MinMean:  p.MinMean,
		MaxMean:  p.MaxMean,
		MinStdev: p.MinStdev,
		MaxStdev: p.MaxStdev,
	}
}
