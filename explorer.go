package patscan

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// Level is one scale step of the geometric search. Scale maps level
// coordinates back into the source image frame: it is always 1 for the
// multiscale strategy and the cumulative shrink factor for the pyramid one.
type Level struct {
	Index      int
	Scale      float64
	WinW, WinH int
	ROI        Rect
	ImgW, ImgH int
}

// Explorer is a geometric strategy enumerating candidate sub-windows.
// The two concrete strategies produce the same logical set of sub-windows
// in source image coordinates while trading the cost differently: the
// multiscale strategy grows the scanning window over a fixed image, the
// pyramid strategy scans a fixed window over shrinking image copies.
//
// Enumeration is deterministic: levels are visited in ascending scale order
// and inside a level the window sweeps row-major, rows before columns, so
// repeated scans yield identical statistics and detection lists.
type Explorer interface {
	// Init validates the scanning window size against the region of interest.
	Init(winW, winH int, roi Rect) error
	// Plan returns the deterministic list of scale levels to visit.
	Plan() ([]Level, error)
	// ScanLevel prepares the per-level state (summary images, pruner and
	// evaluator bindings) and feeds every candidate sub-window of the level
	// through the scan state.
	ScanLevel(lv Level, st *ScanState) error
}

// sweep enumerates the level sub-windows row-major and hands each to the
// scan state. The step is a fraction of the window dimensions, floored at
// one pixel; with SteppingUniform the native window dimensions are used
// instead so the stride stays constant across scales.
func sweep(lv Level, cfg Config, nativeW, nativeH int, st *ScanState) error {
	refW, refH := lv.WinW, lv.WinH
	if cfg.Stepping == SteppingUniform {
		refW, refH = nativeW, nativeH
	}
	sx := max(1, int(math.Round(cfg.DX*float64(refW))))
	sy := max(1, int(math.Round(cfg.DY*float64(refH))))

	for y := lv.ROI.Y; y+lv.WinH <= lv.ROI.Y+lv.ROI.H; y += sy {
		for x := lv.ROI.X; x+lv.WinW <= lv.ROI.X+lv.ROI.W; x += sx {
			if err := st.processSW(x, y, lv.WinW, lv.WinH); err != nil {
				return err
			}
		}
	}
	return nil
}

// initGeometry is the shared Init validation of both strategies.
func initGeometry(winW, winH int, roi Rect) error {
	if winW < 1 || winH < 1 || winW > roi.W || winH > roi.H || roi.X < 0 || roi.Y < 0 {
		return fmt.Errorf("explorer: invalid scan geometry, window %dx%d over roi (%d,%d %dx%d)",
			winW, winH, roi.X, roi.Y, roi.W, roi.H)
	}
	return nil
}

// MultiscaleExplorer scans a fixed image with a geometrically growing window.
type MultiscaleExplorer struct {
	cfg Config

	pix        []uint8
	rows, cols int

	winW, winH int
	roi        Rect

	sumOnce sync.Once
	sums    *SummarySet
	sumErr  error
}

// NewMultiscaleExplorer returns a multiscale strategy over the source image.
func NewMultiscaleExplorer(src *image.NRGBA, cfg Config) *MultiscaleExplorer {
	return &MultiscaleExplorer{
		cfg:  cfg,
		pix:  pigo.RgbToGrayscale(src),
		rows: src.Bounds().Dy(),
		cols: src.Bounds().Dx(),
	}
}

// Init validates the scanning window size against the region of interest.
func (e *MultiscaleExplorer) Init(winW, winH int, roi Rect) error {
	if err := initGeometry(winW, winH, roi); err != nil {
		return err
	}
	if roi.X+roi.W > e.cols || roi.Y+roi.H > e.rows {
		return fmt.Errorf("explorer: roi (%d,%d %dx%d) exceeds the %dx%d image",
			roi.X, roi.Y, roi.W, roi.H, e.cols, e.rows)
	}
	e.winW, e.winH = winW, winH
	e.roi = roi
	return nil
}

// Plan grows the window from the native classifier size by the configured
// scale factor until it no longer fits the region of interest or exceeds the
// maximum pattern bounds. Levels below the minimum pattern bounds are skipped.
func (e *MultiscaleExplorer) Plan() ([]Level, error) {
	maxW := e.roi.W
	if e.cfg.MaxPattW > 0 {
		maxW = min(maxW, e.cfg.MaxPattW)
	}
	maxH := e.roi.H
	if e.cfg.MaxPattH > 0 {
		maxH = min(maxH, e.cfg.MaxPattH)
	}

	var (
		plan  []Level
		lastW int
		lastH int
		f     = 1.0
	)
	for {
		w := int(math.Round(float64(e.winW) * f))
		h := int(math.Round(float64(e.winH) * f))
		if w > maxW || h > maxH {
			break
		}
		f *= e.cfg.DS
		if w == lastW && h == lastH {
			continue
		}
		lastW, lastH = w, h
		if w < e.cfg.MinPattW || h < e.cfg.MinPattH {
			continue
		}
		plan = append(plan, Level{
			Index: len(plan),
			Scale: 1,
			WinW:  w,
			WinH:  h,
			ROI:   e.roi,
			ImgW:  e.cols,
			ImgH:  e.rows,
		})
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("explorer: no scannable scale level between %dx%d and %dx%d",
			e.cfg.MinPattW, e.cfg.MinPattH, maxW, maxH)
	}
	return plan, nil
}

// summaries builds the summary images once per scan; every level of the
// multiscale strategy shares them read-only.
func (e *MultiscaleExplorer) summaries() (*SummarySet, error) {
	e.sumOnce.Do(func() {
		e.sums, e.sumErr = NewSummarySet(e.pix, e.cols, e.rows, 1, 0)
	})
	return e.sums, e.sumErr
}

// ScanLevel sweeps one scale level of the fixed source image.
func (e *MultiscaleExplorer) ScanLevel(lv Level, st *ScanState) error {
	if len(st.pruners) > 0 {
		sums, err := e.summaries()
		if err != nil {
			return fmt.Errorf("explorer: building the summary images: %w", err)
		}
		if err := st.bindPruners(sums); err != nil {
			return err
		}
	}
	if err := st.bindEvaluator(e.pix, e.rows, e.cols, e.cols, lv.Scale); err != nil {
		return err
	}
	return sweep(lv, e.cfg, e.winW, e.winH, st)
}

// PyramidExplorer scans shrinking image copies with a fixed native window.
type PyramidExplorer struct {
	cfg Config

	base       *image.NRGBA
	pix        []uint8
	rows, cols int

	winW, winH int
	roi        Rect
}

// NewPyramidExplorer returns a pyramid strategy over the source image.
func NewPyramidExplorer(src *image.NRGBA, cfg Config) *PyramidExplorer {
	return &PyramidExplorer{
		cfg:  cfg,
		base: src,
		pix:  pigo.RgbToGrayscale(src),
		rows: src.Bounds().Dy(),
		cols: src.Bounds().Dx(),
	}
}

// Init validates the scanning window size against the region of interest.
func (e *PyramidExplorer) Init(winW, winH int, roi Rect) error {
	if err := initGeometry(winW, winH, roi); err != nil {
		return err
	}
	if roi.X+roi.W > e.cols || roi.Y+roi.H > e.rows {
		return fmt.Errorf("explorer: roi (%d,%d %dx%d) exceeds the %dx%d image",
			roi.X, roi.Y, roi.W, roi.H, e.cols, e.rows)
	}
	e.winW, e.winH = winW, winH
	e.roi = roi
	return nil
}

// Plan shrinks the image by the configured scale factor for as long as the
// native window keeps fitting the rescaled region of interest and the window
// mapped back to source coordinates stays within the maximum pattern bounds.
// The produced logical window set matches the multiscale strategy.
func (e *PyramidExplorer) Plan() ([]Level, error) {
	var (
		plan  []Level
		lastW int
		lastH int
		scale = 1.0
	)
	for {
		lw := int(math.Round(float64(e.cols) / scale))
		lh := int(math.Round(float64(e.rows) / scale))
		if lw < e.winW || lh < e.winH {
			break
		}

		// Window size mapped back to the source frame.
		mw := int(math.Round(float64(e.winW) * scale))
		mh := int(math.Round(float64(e.winH) * scale))
		if mw > e.roi.W || mh > e.roi.H {
			break
		}
		if e.cfg.MaxPattW > 0 && mw > e.cfg.MaxPattW {
			break
		}
		if e.cfg.MaxPattH > 0 && mh > e.cfg.MaxPattH {
			break
		}

		lroi := scaleRect(e.roi, 1/scale, lw, lh)
		if e.winW > lroi.W || e.winH > lroi.H {
			break
		}

		s := scale
		scale *= e.cfg.DS

		if lw == lastW && lh == lastH {
			continue
		}
		lastW, lastH = lw, lh
		if mw < e.cfg.MinPattW || mh < e.cfg.MinPattH {
			continue
		}
		plan = append(plan, Level{
			Index: len(plan),
			Scale: s,
			WinW:  e.winW,
			WinH:  e.winH,
			ROI:   lroi,
			ImgW:  lw,
			ImgH:  lh,
		})
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("explorer: no scannable pyramid level for a %dx%d window", e.winW, e.winH)
	}
	return plan, nil
}

// ScanLevel rescales the source image for the level, rebuilds the summary
// images over the rescaled pixels and sweeps the fixed native window.
// Accepted sub-windows are mapped back to source coordinates by the scan
// state when stored.
func (e *PyramidExplorer) ScanLevel(lv Level, st *ScanState) error {
	pix := e.pix
	if lv.Scale != 1 {
		resized := imaging.Resize(e.base, lv.ImgW, lv.ImgH, imaging.Lanczos)
		pix = pigo.RgbToGrayscale(resized)
	}

	if len(st.pruners) > 0 {
		sums, err := NewSummarySet(pix, lv.ImgW, lv.ImgH, 1, 0)
		if err != nil {
			return fmt.Errorf("explorer: building the level %d summary images: %w", lv.Index, err)
		}
		if err := st.bindPruners(sums); err != nil {
			return err
		}
	}
	if err := st.bindEvaluator(pix, lv.ImgH, lv.ImgW, lv.ImgW, lv.Scale); err != nil {
		return err
	}
	return sweep(lv, e.cfg, e.winW, e.winH, st)
}

// scaleRect maps a source-frame rectangle into level coordinates,
// clamped to the level image bounds.
func scaleRect(r Rect, f float64, lw, lh int) Rect {
	x0 := int(math.Round(float64(r.X) * f))
	y0 := int(math.Round(float64(r.Y) * f))
	x1 := int(math.Round(float64(r.X+r.W) * f))
	y1 := int(math.Round(float64(r.Y+r.H) * f))

	x0 = min(max(x0, 0), lw)
	y0 = min(max(y0, 0), lh)
	x1 = min(max(x1, x0), lw)
	y1 = min(max(y1, y0), lh)

	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
