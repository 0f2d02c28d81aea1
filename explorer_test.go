package patscan

import (
	"errors"
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubEvaluator is a deterministic stand-in for a trained classifier.
// The decide function controls the per-window outcome; when nil every
// window is rejected.
type stubEvaluator struct {
	decide func(x, y, w, h int) (bool, float64)
	fail   bool

	win     Rect
	conf    float64
	pattern bool
}

func (e *stubEvaluator) SetImage(pix []uint8, rows, cols, dim int) error { return nil }

func (e *stubEvaluator) SetSubWindow(x, y, w, h int) error {
	if e.fail {
		return errors.New("stub evaluator failure")
	}
	e.win = Rect{X: x, Y: y, W: w, H: h}
	e.pattern, e.conf = false, 0
	if e.decide != nil {
		e.pattern, e.conf = e.decide(x, y, w, h)
	}
	return nil
}

func (e *stubEvaluator) IsPattern() bool     { return e.pattern }
func (e *stubEvaluator) Confidence() float64 { return e.conf }
func (e *stubEvaluator) Window() Rect        { return e.win }

func (e *stubEvaluator) Clone() Evaluator {
	return &stubEvaluator{decide: e.decide, fail: e.fail}
}

// noiseImage builds a reproducible uniform-noise test image.
func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(rng.Intn(256))
		img.Pix[i+0] = v
		img.Pix[i+1] = v
		img.Pix[i+2] = v
		img.Pix[i+3] = 0xff
	}
	return img
}

func acceptAll(x, y, w, h int) (bool, float64) { return true, 1 }

func TestExplorer_InitBoundaryRejection(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 1)
	for _, newExp := range []func() Explorer{
		func() Explorer { return NewMultiscaleExplorer(img, DefaultConfig()) },
		func() Explorer { return NewPyramidExplorer(img, DefaultConfig()) },
	} {
		roi := Rect{X: 0, Y: 0, W: 64, H: 64}

		assert.Error(newExp().Init(70, 20, roi), "window wider than the roi")
		assert.Error(newExp().Init(20, 70, roi), "window taller than the roi")
		assert.Error(newExp().Init(0, 20, roi), "degenerate window")
		assert.Error(newExp().Init(20, 20, Rect{X: -1, Y: 0, W: 64, H: 64}), "negative roi origin")
		assert.Error(newExp().Init(20, 20, Rect{X: 32, Y: 32, W: 64, H: 64}), "roi exceeding the image")
		assert.NoError(newExp().Init(20, 20, roi))
	}
}

// The multiscale geometry of the reference scenario: 64x64 image, 20x20
// native window, dx=dy=0.2, ds=1.5. Three scale levels (20, 30 and 45
// pixels) yield 144+36+9 = 189 candidate sub-windows.
func referenceConfig() Config {
	cfg := DefaultConfig()
	cfg.DX, cfg.DY = 0.2, 0.2
	cfg.DS = 1.5
	cfg.WindowW, cfg.WindowH = 20, 20
	cfg.Select = SelectAll
	return cfg
}

func TestScan_ReferenceWindowCount(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 2)

	s := &Scanner{Config: referenceConfig(), Evaluator: &stubEvaluator{}}
	res, err := s.Detect(img)
	assert.NoError(err)

	assert.Equal(uint64(189), res.Stats.Scanned)
	assert.Equal(uint64(0), res.Stats.Pruned)
	assert.Equal(uint64(0), res.Stats.Accepted)
	assert.Empty(res.Detections)

	// With an always accepting evaluator every visited window is kept.
	s.Evaluator = &stubEvaluator{decide: acceptAll}
	res, err = s.Detect(img)
	assert.NoError(err)

	assert.Equal(uint64(189), res.Stats.Scanned)
	assert.Equal(uint64(189), res.Stats.Accepted)
	assert.Len(res.Detections, 189)
}

func TestScan_PrunerToggleScenario(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 2)

	// Mean bounds above any possible pixel mean reject every window before
	// the evaluator runs.
	cfg := referenceConfig()
	cfg.PruneUseMean = true
	cfg.MinMean, cfg.MaxMean = 300, 400

	s := &Scanner{Config: cfg, Evaluator: &stubEvaluator{decide: acceptAll}}
	res, err := s.Detect(img)
	assert.NoError(err)

	assert.Equal(uint64(189), res.Stats.Pruned)
	assert.Equal(uint64(0), res.Stats.Scanned)
	assert.Equal(uint64(0), res.Stats.Accepted)
	assert.Empty(res.Detections)
}

func TestScan_Determinism(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 4)
	decide := func(x, y, w, h int) (bool, float64) {
		return (x+y)%5 == 0, float64(w) / float64(x+y+1)
	}

	for _, explorer := range []ExplorerType{Multiscale, Pyramid} {
		cfg := referenceConfig()
		cfg.Explorer = explorer
		cfg.PruneUseMean, cfg.PruneUseStdev = true, true
		cfg.MinMean, cfg.MaxMean = 0, 255
		cfg.MinStdev, cfg.MaxStdev = 0, 255

		s := &Scanner{Config: cfg, Evaluator: &stubEvaluator{decide: decide}}

		first, err := s.Detect(img)
		assert.NoError(err)
		second, err := s.Detect(img)
		assert.NoError(err)

		assert.Equal(first.Stats, second.Stats)
		assert.Equal(first.Detections, second.Detections)
		assert.LessOrEqual(first.Stats.Accepted, first.Stats.Scanned)
	}
}

func TestScan_PyramidSourceFrame(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 5)
	cfg := referenceConfig()
	cfg.Explorer = Pyramid

	s := &Scanner{Config: cfg, Evaluator: &stubEvaluator{decide: acceptAll}}
	res, err := s.Detect(img)
	assert.NoError(err)
	assert.NotEmpty(res.Detections)

	// Every detection is mapped back to the source frame: the boxes grow
	// with the pyramid level even though the scanned window stays native.
	sizes := map[int]bool{}
	for _, d := range res.Detections {
		assert.GreaterOrEqual(d.X, 0)
		assert.GreaterOrEqual(d.Y, 0)
		assert.LessOrEqual(d.X+d.W, 64)
		assert.LessOrEqual(d.Y+d.H, 64)
		assert.GreaterOrEqual(d.W, 20)
		sizes[d.W] = true
	}
	assert.Equal(map[int]bool{20: true, 30: true, 45: true}, sizes)
}

func TestScan_CounterInvariant(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(48, 48, 6)

	cfg := DefaultConfig()
	cfg.DX, cfg.DY, cfg.DS = 0.15, 0.15, 1.2
	cfg.WindowW, cfg.WindowH = 12, 12
	cfg.PruneUseStdev = true
	cfg.MinStdev, cfg.MaxStdev = 40, 255
	cfg.Select = SelectAll

	s := &Scanner{Config: cfg, Evaluator: &stubEvaluator{decide: acceptAll}}
	res, err := s.Detect(img)
	assert.NoError(err)

	// Rerun without pruning to count the visited windows.
	unpruned := cfg
	unpruned.PruneUseStdev = false
	s = &Scanner{Config: unpruned, Evaluator: &stubEvaluator{decide: acceptAll}}
	all, err := s.Detect(img)
	assert.NoError(err)

	assert.Equal(all.Stats.Scanned, res.Stats.Scanned+res.Stats.Pruned)
	assert.LessOrEqual(res.Stats.Accepted, res.Stats.Scanned)
}

func TestScan_PatternBounds(t *testing.T) {
	assert := assert.New(t)

	img := noiseImage(64, 64, 7)

	cfg := referenceConfig()
	cfg.MinPattW, cfg.MinPattH = 25, 25
	cfg.MaxPattW, cfg.MaxPattH = 40, 40

	// Only the 30 pixel level survives the pattern bounds.
	s := &Scanner{Config: cfg, Evaluator: &stubEvaluator{decide: acceptAll}}
	res, err := s.Detect(img)
	assert.NoError(err)
	for _, d := range res.Detections {
		assert.Equal(30, d.W)
		assert.Equal(30, d.H)
	}
	assert.Equal(uint64(36), res.Stats.Scanned)
}

func TestScan_EvaluatorFailureAborts(t *testing.T) {
	assert := assert.New(t)

	s := &Scanner{Config: referenceConfig(), Evaluator: &stubEvaluator{fail: true}}
	res, err := s.Detect(noiseImage(64, 64, 8))
	assert.Error(err)
	assert.Nil(res)
}
