package patscan

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Transform is the per-pixel transform applied while accumulating a summary image.
type Transform int

const (
	// TransformIdentity accumulates the raw sample values.
	TransformIdentity Transform = iota
	// TransformSquare accumulates the squared sample values.
	TransformSquare
)

// Summary is a prefix-sum ("integral") image: cell (i,j) holds the cumulative
// sum of the transformed samples with row < i and column < j. The first row
// and column are zero padded, so the sum over any sub-rectangle is obtainable
// with a single four-corner query.
type Summary struct {
	w, h  int
	cells []float64
}

// NewSummary builds a summary image over a row-major, channel-interleaved
// sample grid. The accepted sample slices are []uint8, []int16, []int32,
// []int64, []float32 and []float64; any other representation is a setup error.
// For multi-channel grids only the designated channel is accumulated.
func NewSummary(samples any, w, h, channels, channel int, tr Transform) (*Summary, error) {
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("summary: invalid grid size %dx%d", w, h)
	}
	if channels < 1 || channel < 0 || channel >= channels {
		return nil, fmt.Errorf("summary: channel %d out of range for %d channel(s)", channel, channels)
	}
	if tr != TransformIdentity && tr != TransformSquare {
		return nil, fmt.Errorf("summary: unknown pixel transform %d", tr)
	}

	switch px := samples.(type) {
	case []uint8:
		return buildSummary(px, w, h, channels, channel, tr)
	case []int16:
		return buildSummary(px, w, h, channels, channel, tr)
	case []int32:
		return buildSummary(px, w, h, channels, channel, tr)
	case []int64:
		return buildSummary(px, w, h, channels, channel, tr)
	case []float32:
		return buildSummary(px, w, h, channels, channel, tr)
	case []float64:
		return buildSummary(px, w, h, channels, channel, tr)
	default:
		return nil, fmt.Errorf("summary: unsupported sample representation %T", samples)
	}
}

func buildSummary[T constraints.Integer | constraints.Float](px []T, w, h, channels, channel int, tr Transform) (*Summary, error) {
	if len(px) != w*h*channels {
		return nil, fmt.Errorf("summary: sample grid has %d values, expected %d", len(px), w*h*channels)
	}

	stride := w + 1
	cells := make([]float64, (h+1)*stride)

	for y := 0; y < h; y++ {
		var rowSum float64
		for x := 0; x < w; x++ {
			v := float64(px[(y*w+x)*channels+channel])
			if tr == TransformSquare {
				v *= v
			}
			rowSum += v
			cells[(y+1)*stride+x+1] = cells[y*stride+x+1] + rowSum
		}
	}
	return &Summary{w: w, h: h, cells: cells}, nil
}

// Width returns the horizontal extent of the source grid.
func (s *Summary) Width() int { return s.w }

// Height returns the vertical extent of the source grid.
func (s *Summary) Height() int { return s.h }

// InBounds reports whether the rectangle is a valid query window.
func (s *Summary) InBounds(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w >= 1 && h >= 1 && x+w <= s.w && y+h <= s.h
}

// Sum returns the transformed sample sum over the rectangle (x,y,w,h)
// using the four-corner formula. The rectangle must be in bounds.
func (s *Summary) Sum(x, y, w, h int) float64 {
	stride := s.w + 1
	return s.cells[y*stride+x] + s.cells[(y+h)*stride+(x+w)] -
		s.cells[(y+h)*stride+x] - s.cells[y*stride+(x+w)]
}

// SummarySet bundles the plain and the squared summary image of one
// scan level. It is built once per image (or once per pyramid level)
// and consumed read-only by the pruner chain.
type SummarySet struct {
	Mean   *Summary
	Square *Summary
}

// NewSummarySet builds both summary images over the same sample grid.
func NewSummarySet(samples any, w, h, channels, channel int) (*SummarySet, error) {
	mean, err := NewSummary(samples, w, h, channels, channel, TransformIdentity)
	if err != nil {
		return nil, err
	}
	square, err := NewSummary(samples, w, h, channels, channel, TransformSquare)
	if err != nil {
		return nil, err
	}
	return &SummarySet{Mean: mean, Square: square}, nil
}
