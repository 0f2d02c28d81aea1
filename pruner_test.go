package patscan

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// bruteMeanStdev computes the reference per-pixel mean and standard
// deviation of a window directly from the samples.
func bruteMeanStdev(px []uint8, gw int, x, y, w, h int) (float64, float64) {
	var sum, sqSum float64
	for r := y; r < y+h; r++ {
		for c := x; c < x+w; c++ {
			v := float64(px[r*gw+c])
			sum += v
			sqSum += v * v
		}
	}
	area := float64(w * h)
	mean := sum / area
	return mean, math.Sqrt(sqSum/area - mean*mean)
}

func noisyGrid(gw, gh int, seed int64) []uint8 {
	rng := rand.New(rand.NewSource(seed))
	px := make([]uint8, gw*gh)
	for i := range px {
		px[i] = uint8(rng.Intn(256))
	}
	return px
}

// The pruner compares squared deviation proxies against bounds pre-scaled by
// area squared; this pins its acceptance behavior to a brute-force variance
// computation over random windows and bounds.
func TestVariancePruner_MatchesBruteForce(t *testing.T) {
	assert := assert.New(t)

	const gw, gh = 48, 40
	px := noisyGrid(gw, gh, 7)
	ss, err := NewSummarySet(px, gw, gh, 1, 0)
	assert.NoError(err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 300; i++ {
		p := &VariancePruner{
			UseMean:  true,
			UseStdev: true,
			MinMean:  rng.Float64() * 100,
			MaxMean:  100 + rng.Float64()*155,
			MinStdev: rng.Float64() * 30,
			MaxStdev: 30 + rng.Float64()*100,
		}
		assert.NoError(p.Bind(ss))

		x := rng.Intn(gw - 4)
		y := rng.Intn(gh - 4)
		w := 2 + rng.Intn(gw-x-2)
		h := 2 + rng.Intn(gh-y-2)

		mean, stdev := bruteMeanStdev(px, gw, x, y, w, h)
		wantReject := mean < p.MinMean || mean > p.MaxMean ||
			stdev < p.MinStdev || stdev > p.MaxStdev

		got, err := p.Rejects(x, y, w, h)
		assert.NoError(err)
		assert.Equal(wantReject, got, "window (%d,%d %dx%d) mean=%v stdev=%v", x, y, w, h, mean, stdev)
	}
}

func TestVariancePruner_IndependentToggles(t *testing.T) {
	assert := assert.New(t)

	const gw, gh = 16, 16
	px := noisyGrid(gw, gh, 3)
	ss, err := NewSummarySet(px, gw, gh, 1, 0)
	assert.NoError(err)

	// Bounds that reject everything through the mean test.
	p := &VariancePruner{UseMean: true, MinMean: 300, MaxMean: 400}
	assert.NoError(p.Bind(ss))
	rejected, err := p.Rejects(0, 0, 8, 8)
	assert.NoError(err)
	assert.True(rejected)

	// Same bounds with the mean test disabled accept everything.
	p = &VariancePruner{UseStdev: true, MinMean: 300, MaxMean: 400, MinStdev: 0, MaxStdev: 255}
	assert.NoError(p.Bind(ss))
	rejected, err = p.Rejects(0, 0, 8, 8)
	assert.NoError(err)
	assert.False(rejected)

	// Both tests disabled: always accept, even unbound.
	p = &VariancePruner{}
	rejected, err = p.Rejects(0, 0, 8, 8)
	assert.NoError(err)
	assert.False(rejected)
}

func TestVariancePruner_Failures(t *testing.T) {
	assert := assert.New(t)

	p := &VariancePruner{UseMean: true}
	_, err := p.Rejects(0, 0, 4, 4)
	assert.Error(err, "an unbound pruner cannot decide")

	assert.Error(p.Bind(nil))

	px := noisyGrid(8, 8, 5)
	mean, err := NewSummary(px, 8, 8, 1, 0, TransformIdentity)
	assert.NoError(err)
	assert.Error((&VariancePruner{UseStdev: true}).Bind(&SummarySet{Mean: mean}))

	ss, err := NewSummarySet(px, 8, 8, 1, 0)
	assert.NoError(err)
	assert.NoError(p.Bind(ss))
	_, err = p.Rejects(6, 6, 4, 4)
	assert.Error(err, "out of grid windows are hard errors")
}

func TestVariancePruner_CloneIsUnbound(t *testing.T) {
	assert := assert.New(t)

	px := noisyGrid(8, 8, 9)
	ss, err := NewSummarySet(px, 8, 8, 1, 0)
	assert.NoError(err)

	p := &VariancePruner{UseMean: true, MinMean: 0, MaxMean: 255}
	assert.NoError(p.Bind(ss))

	clone, ok := Pruner(p).(PrunerCloner)
	assert.True(ok)

	cp := clone.Clone().(*VariancePruner)
	assert.Equal(p.MinMean, cp.MinMean)
	assert.Equal(p.MaxMean, cp.MaxMean)
	_, err = cp.Rejects(0, 0, 4, 4)
	assert.Error(err, "the clone must be rebound before use")
}
