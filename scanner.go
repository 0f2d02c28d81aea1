package patscan

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
)

// Scanner runs one scan session: it owns the configuration, the trained
// evaluator and the pruner chain, and drives the configured geometric
// strategy over the source image. A Scanner holds no state between calls,
// so distinct Scanner values may run concurrently; a single Detect call
// owns its summary images, statistics and detection store exclusively.
type Scanner struct {
	Config    Config
	Evaluator Evaluator
	// Pruners is the ordered rejection chain. When nil and one of the
	// variance tests is enabled, a variance pruner is built from the config.
	Pruners []Pruner
	// Logger receives the verbose scan trace. Defaults to slog.Default.
	Logger *slog.Logger
}

// ScanState is the mutable state of one scan shard: the counters, the
// append-only raw detection list and the pruner/evaluator bindings of the
// currently scanned level. It is never shared between goroutines.
type ScanState struct {
	pruners []Pruner
	eval    Evaluator

	// scale maps level coordinates back to the source image frame.
	scale float64

	stats Stats
	dets  []Detection
}

func newScanState(pruners []Pruner, eval Evaluator) *ScanState {
	return &ScanState{pruners: pruners, eval: eval, scale: 1}
}

// bindPruners attaches the pruner chain to the level summary images.
func (st *ScanState) bindPruners(sums *SummarySet) error {
	for i, p := range st.pruners {
		if err := p.Bind(sums); err != nil {
			return fmt.Errorf("pruning setup: pruner %d: %w", i, err)
		}
	}
	return nil
}

// bindEvaluator attaches the evaluator to the level pixels and records the
// factor mapping level coordinates back to the source frame.
func (st *ScanState) bindEvaluator(pix []uint8, rows, cols, dim int, scale float64) error {
	if err := st.eval.SetImage(pix, rows, cols, dim); err != nil {
		return fmt.Errorf("evaluation setup: %w", err)
	}
	st.scale = scale
	return nil
}

// processSW runs the prune/evaluate pipeline on one candidate sub-window.
// A sub-window rejected by any pruner never reaches the evaluator; a pruner
// or evaluator failure aborts the scan since a corrupted per-window state
// would silently bias the results.
func (st *ScanState) processSW(x, y, w, h int) error {
	for i, p := range st.pruners {
		rejected, err := p.Rejects(x, y, w, h)
		if err != nil {
			return fmt.Errorf("pruning sub-window (%d,%d %dx%d): pruner %d: %w", x, y, w, h, i, err)
		}
		if rejected {
			st.stats.Pruned++
			return nil
		}
	}

	if err := st.eval.SetSubWindow(x, y, w, h); err != nil {
		return fmt.Errorf("evaluating sub-window (%d,%d %dx%d): %w", x, y, w, h, err)
	}
	st.stats.Scanned++

	if st.eval.IsPattern() {
		st.stats.Accepted++
		st.storePattern(st.eval.Window(), st.eval.Confidence())
	}
	return nil
}

// storePattern is the single mutation entry point of the detection store.
// It normalizes the evaluated window into source image coordinates, which is
// where the pyramid strategy's rescaling bookkeeping stays hidden from the
// rest of the pipeline.
func (st *ScanState) storePattern(r Rect, conf float64) {
	if st.scale != 1 {
		r = Rect{
			X: int(math.Round(float64(r.X) * st.scale)),
			Y: int(math.Round(float64(r.Y) * st.scale)),
			W: int(math.Round(float64(r.W) * st.scale)),
			H: int(math.Round(float64(r.H) * st.scale)),
		}
	}
	st.dets = append(st.dets, Detection{X: r.X, Y: r.Y, W: r.W, H: r.H, Conf: conf})
}

// Detect scans the source image for the trained pattern and returns the
// final detection set together with the scan statistics. Configuration and
// input errors surface before any scanning work begins; per-window failures
// abort the scan with no partial output.
func (s *Scanner) Detect(src image.Image) (*Result, error) {
	cfg := s.Config
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if s.Evaluator == nil {
		return nil, errors.New("scanner: no evaluator loaded")
	}
	if src == nil {
		return nil, errors.New("scanner: no source image")
	}

	img := imgToNRGBA(src)
	cols, rows := img.Bounds().Dx(), img.Bounds().Dy()

	roi := cfg.ROI
	if roi == (Rect{}) {
		roi = Rect{X: 0, Y: 0, W: cols, H: rows}
	}

	pruners := s.Pruners
	if pruners == nil && (cfg.PruneUseMean || cfg.PruneUseStdev) {
		pruners = []Pruner{NewVariancePruner(cfg)}
	}

	var exp Explorer
	switch cfg.Explorer {
	case Pyramid:
		exp = NewPyramidExplorer(img, cfg)
	default:
		exp = NewMultiscaleExplorer(img, cfg)
	}

	if err := exp.Init(cfg.WindowW, cfg.WindowH, roi); err != nil {
		return nil, err
	}
	plan, err := exp.Plan()
	if err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Verbose {
		logger.Info("scan plan ready",
			"levels", len(plan), "image", fmt.Sprintf("%dx%d", cols, rows),
			"roi", fmt.Sprintf("(%d,%d %dx%d)", roi.X, roi.Y, roi.W, roi.H))
	}

	workers := cfg.Workers
	if workers > len(plan) {
		workers = len(plan)
	}

	var states []*ScanState
	if workers > 1 && shardable(pruners, s.Evaluator) {
		states, err = s.scanParallel(exp, plan, pruners, workers)
	} else {
		states, err = s.scanSequential(exp, plan, pruners)
	}
	if err != nil {
		return nil, err
	}

	// Join the shards in level order so the raw list stays deterministic.
	res := &Result{}
	var raw []Detection
	for _, st := range states {
		res.Stats.add(st.stats)
		raw = append(raw, st.dets...)
	}
	if cfg.Verbose {
		logger.Info("scan finished",
			"scanned", res.Stats.Scanned, "pruned", res.Stats.Pruned,
			"accepted", res.Stats.Accepted)
	}

	switch cfg.Select {
	case SelectMerge:
		res.Detections = MergeDetections(raw, cfg.Merge, cfg.Overlap, cfg.MinOverlap)
	default:
		res.Detections = raw
	}
	if cfg.Verbose {
		logger.Info("selection finished", "raw", len(raw), "final", len(res.Detections))
	}
	return res, nil
}

// scanSequential walks the plan on the calling goroutine, sharing one scan
// state so the pruner and evaluator bindings simply move between levels.
func (s *Scanner) scanSequential(exp Explorer, plan []Level, pruners []Pruner) ([]*ScanState, error) {
	st := newScanState(pruners, s.Evaluator)
	for _, lv := range plan {
		if err := exp.ScanLevel(lv, st); err != nil {
			return nil, err
		}
	}
	return []*ScanState{st}, nil
}

// scanParallel shards the plan by scale level across a fixed worker pool.
// Every level owns cloned pruners and a cloned evaluator, so the only shared
// data is read-only; the caller joins the per-level states in plan order.
func (s *Scanner) scanParallel(exp Explorer, plan []Level, pruners []Pruner, workers int) ([]*ScanState, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
	)
	states := make([]*ScanState, len(plan))
	jobs := make(chan Level)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for lv := range jobs {
				st := newScanState(clonePruners(pruners), s.Evaluator.(EvaluatorCloner).Clone())
				err := exp.ScanLevel(lv, st)

				mu.Lock()
				if err != nil && scanErr == nil {
					scanErr = err
				}
				states[lv.Index] = st
				mu.Unlock()
			}
		}()
	}

	for _, lv := range plan {
		jobs <- lv
	}
	close(jobs)
	wg.Wait()

	if scanErr != nil {
		return nil, scanErr
	}
	return states, nil
}

// shardable reports whether the evaluator and every pruner can be cloned
// into per-worker copies; when they cannot, the scan falls back to the
// sequential path.
func shardable(pruners []Pruner, eval Evaluator) bool {
	if _, ok := eval.(EvaluatorCloner); !ok {
		return false
	}
	for _, p := range pruners {
		if _, ok := p.(PrunerCloner); !ok {
			return false
		}
	}
	return true
}

func clonePruners(pruners []Pruner) []Pruner {
	if pruners == nil {
		return nil
	}
	out := make([]Pruner, len(pruners))
	for i, p := range pruners {
		out[i] = p.(PrunerCloner).Clone()
	}
	return out
}
