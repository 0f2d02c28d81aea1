package patscan

import (
	"errors"
	"fmt"
)

// ExplorerType selects the geometric search strategy.
type ExplorerType int

const (
	// Multiscale keeps the image fixed and grows the scanning window.
	Multiscale ExplorerType = iota
	// Pyramid keeps the scanning window fixed and shrinks image copies.
	Pyramid
)

// Stepping is a refinement of the window stepping rule within a scale level.
type Stepping int

const (
	// SteppingDense steps the window by a fraction of its current size.
	SteppingDense Stepping = iota
	// SteppingUniform steps the window by a fraction of the native
	// classifier window size, keeping the stride constant across scales.
	SteppingUniform
)

// SelectMode determines how the raw detections are post-processed.
type SelectMode int

const (
	// SelectAll passes the raw detections through unchanged.
	SelectAll SelectMode = iota
	// SelectMerge clusters the overlapping raw detections.
	SelectMerge
)

// MergeMode determines the representative of a merged detection cluster.
type MergeMode int

const (
	// MergeBest keeps the highest confidence detection of each cluster.
	MergeBest MergeMode = iota
	// MergeAverage replaces each cluster with its confidence-weighted average box.
	MergeAverage
)

// OverlapMode is the pairwise overlap ratio used for clustering.
type OverlapMode int

const (
	// OverlapIoU is the intersection area over the union area.
	OverlapIoU OverlapMode = iota
	// OverlapMin is the intersection area over the smaller box area.
	OverlapMin
)

// Config holds the options consumed by the scanning core.
type Config struct {
	// DX and DY are the window step expressed as a fraction of the
	// current (or native, see Stepping) window dimensions.
	DX, DY float64
	// DS is the scale growth factor between successive scan levels.
	DS float64
	// WindowW and WindowH define the classifier's native window size.
	WindowW, WindowH int
	// MinPattW/H and MaxPattW/H bound the scanned window dimensions
	// in the source image frame. Zero means unbounded.
	MinPattW, MinPattH int
	MaxPattW, MaxPattH int
	// ROI restricts the scan to a region of the source image.
	// The zero value means the whole image.
	ROI Rect

	// PruneUseMean and PruneUseStdev toggle the variance pruner tests.
	PruneUseMean, PruneUseStdev bool
	// MinMean/MaxMean bound the per-pixel mean of an acceptable window.
	MinMean, MaxMean float64
	// MinStdev/MaxStdev bound the per-pixel standard deviation
	// of an acceptable window.
	MinStdev, MaxStdev float64

	Explorer ExplorerType
	Stepping Stepping

	Select  SelectMode
	Merge   MergeMode
	Overlap OverlapMode
	// MinOverlap is the minimum pairwise overlap ratio joining two
	// raw detections into one cluster.
	MinOverlap float64

	// Workers shards the scan by scale level across goroutines.
	// Values below 2 run the scan sequentially.
	Workers int
	// Verbose emits a scan trace through the scanner logger.
	// It has no effect on the results.
	Verbose bool
}

// DefaultConfig returns the baseline scan configuration.
func DefaultConfig() Config {
	return Config{
		DX:         0.1,
		DY:         0.1,
		DS:         1.1,
		WindowW:    20,
		WindowH:    20,
		MinOverlap: 0.5,
		Select:     SelectMerge,
		Merge:      MergeBest,
		Overlap:    OverlapIoU,
		MaxMean:    255,
		MaxStdev:   255,
		Workers:    1,
	}
}

// validate reports the first configuration error. It runs before any
// scanning work begins so a misconfigured session never starts.
func (c *Config) validate() error {
	if c.DX < 0 || c.DX >= 1 || c.DY < 0 || c.DY >= 1 {
		return fmt.Errorf("config: window step fractions must be in [0,1), got dx=%v dy=%v", c.DX, c.DY)
	}
	if c.DS <= 1 {
		return fmt.Errorf("config: scale factor must be greater than 1, got ds=%v", c.DS)
	}
	if c.WindowW < 1 || c.WindowH < 1 {
		return fmt.Errorf("config: classifier window must be at least 1x1, got %dx%d", c.WindowW, c.WindowH)
	}
	if c.MinPattW < 0 || c.MinPattH < 0 || c.MaxPattW < 0 || c.MaxPattH < 0 {
		return errors.New("config: pattern size bounds cannot be negative")
	}
	if c.MaxPattW > 0 && c.MaxPattW < c.MinPattW {
		return fmt.Errorf("config: max pattern width %d is below min pattern width %d", c.MaxPattW, c.MinPattW)
	}
	if c.MaxPattH > 0 && c.MaxPattH < c.MinPattH {
		return fmt.Errorf("config: max pattern height %d is below min pattern height %d", c.MaxPattH, c.MinPattH)
	}
	if c.ROI.X < 0 || c.ROI.Y < 0 || c.ROI.W < 0 || c.ROI.H < 0 {
		return errors.New("config: region of interest cannot have negative coordinates")
	}
	if c.MinOverlap < 0 || c.MinOverlap > 1 {
		return fmt.Errorf("config: minimum overlap ratio must be in [0,1], got %v", c.MinOverlap)
	}
	if c.Explorer != Multiscale && c.Explorer != Pyramid {
		return fmt.Errorf("config: unknown explorer type %d", c.Explorer)
	}
	if c.Stepping != SteppingDense && c.Stepping != SteppingUniform {
		return fmt.Errorf("config: unknown stepping mode %d", c.Stepping)
	}
	if c.Select != SelectAll && c.Select != SelectMerge {
		return fmt.Errorf("config: unknown selection mode %d", c.Select)
	}
	if c.Merge != MergeBest && c.Merge != MergeAverage {
		return fmt.Errorf("config: unknown merge mode %d", c.Merge)
	}
	if c.Overlap != OverlapIoU && c.Overlap != OverlapMin {
		return fmt.Errorf("config: unknown overlap mode %d", c.Overlap)
	}
	return nil
}
