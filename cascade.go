package patscan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Cascade is a pre-trained soft cascade of binary decision trees over pixel
// intensity comparisons, unpacked from its binary serialization. The format
// is the one produced by the pigo/picojs tooling: an 8 byte header followed
// by the tree depth, the tree count and, per tree, the comparison codes, the
// leaf predictions and the stage threshold.
type Cascade struct {
	treeDepth     uint32
	treeNum       uint32
	treeCodes     []int8
	treePred      []float32
	treeThreshold []float32
}

// UnpackCascade parses a binary cascade file. A malformed or truncated
// packet is an input error that aborts the scan setup.
func UnpackCascade(packet []byte) (*Cascade, error) {
	// 8 header bytes, tree depth and tree count.
	if len(packet) < 16 {
		return nil, errors.New("cascade: packet too short for the header")
	}
	pos := 8
	treeDepth := binary.LittleEndian.Uint32(packet[pos:])
	pos += 4
	treeNum := binary.LittleEndian.Uint32(packet[pos:])
	pos += 4

	if treeDepth < 1 || treeDepth > 16 {
		return nil, fmt.Errorf("cascade: implausible tree depth %d", treeDepth)
	}
	if treeNum < 1 {
		return nil, errors.New("cascade: no trees in the packet")
	}

	leaves := 1 << treeDepth
	codeLen := 4*leaves - 4

	c := &Cascade{
		treeDepth:     treeDepth,
		treeNum:       treeNum,
		treeCodes:     make([]int8, 0, int(treeNum)*4*leaves),
		treePred:      make([]float32, 0, int(treeNum)*leaves),
		treeThreshold: make([]float32, 0, treeNum),
	}

	for t := 0; t < int(treeNum); t++ {
		if pos+codeLen+4*leaves+4 > len(packet) {
			return nil, fmt.Errorf("cascade: packet truncated at tree %d", t)
		}

		// The root node carries no comparison, hence the four zero codes.
		c.treeCodes = append(c.treeCodes, 0, 0, 0, 0)
		for _, b := range packet[pos : pos+codeLen] {
			c.treeCodes = append(c.treeCodes, int8(b))
		}
		pos += codeLen

		for i := 0; i < leaves; i++ {
			c.treePred = append(c.treePred, math.Float32frombits(binary.LittleEndian.Uint32(packet[pos:])))
			pos += 4
		}

		c.treeThreshold = append(c.treeThreshold, math.Float32frombits(binary.LittleEndian.Uint32(packet[pos:])))
		pos += 4
	}
	return c, nil
}

// classify runs the cascade over the square region of size scale centered at
// (row, col). It returns a negative value as soon as a stage threshold fails,
// otherwise the accumulated score in excess of the final threshold.
// The comparisons use 24.8 fixed-point arithmetic so the tree codes scale
// with the region without floating point work.
func (c *Cascade) classify(row, col, scale int, pix []uint8, dim int) float32 {
	var (
		root int
		out  float32
	)
	pTree := 1 << c.treeDepth

	row = row * 256
	col = col * 256

	for i := 0; i < int(c.treeNum); i++ {
		idx := 1
		for j := 0; j < int(c.treeDepth); j++ {
			x1 := ((row+int(c.treeCodes[root+4*idx+0])*scale)>>8)*dim + ((col + int(c.treeCodes[root+4*idx+1])*scale) >> 8)
			x2 := ((row+int(c.treeCodes[root+4*idx+2])*scale)>>8)*dim + ((col + int(c.treeCodes[root+4*idx+3])*scale) >> 8)

			bin := 0
			if pix[x1] <= pix[x2] {
				bin = 1
			}
			idx = 2*idx + bin
		}
		out += c.treePred[pTree*i+idx-pTree]

		if out <= c.treeThreshold[i] {
			return -1.0
		}
		root += 4 * pTree
	}
	return out - c.treeThreshold[c.treeNum-1]
}

// CascadeClassifier adapts a Cascade to the Evaluator contract. The cascade
// operates on square regions, so for a non-square sub-window the classifier
// evaluates the largest centered square and reports that square as the
// refined window.
type CascadeClassifier struct {
	cascade *Cascade

	pix        []uint8
	rows, cols int
	dim        int

	win     Rect
	conf    float64
	pattern bool
}

// NewCascadeClassifier returns an evaluator over the unpacked cascade.
func NewCascadeClassifier(c *Cascade) *CascadeClassifier {
	return &CascadeClassifier{cascade: c}
}

// SetImage binds the classifier to a grayscale pixel grid.
func (e *CascadeClassifier) SetImage(pix []uint8, rows, cols, dim int) error {
	if e.cascade == nil {
		return errors.New("cascade classifier: no cascade loaded")
	}
	if rows < 1 || cols < 1 || dim < cols {
		return fmt.Errorf("cascade classifier: invalid image geometry rows=%d cols=%d dim=%d", rows, cols, dim)
	}
	if len(pix) < rows*dim {
		return fmt.Errorf("cascade classifier: pixel buffer has %d values, expected at least %d", len(pix), rows*dim)
	}
	e.pix = pix
	e.rows, e.cols, e.dim = rows, cols, dim
	return nil
}

// SetSubWindow positions the classifier on a candidate sub-window and
// computes its decision and confidence.
func (e *CascadeClassifier) SetSubWindow(x, y, w, h int) error {
	if e.pix == nil {
		return errors.New("cascade classifier: not bound to an image")
	}
	if w < 1 || h < 1 {
		return fmt.Errorf("cascade classifier: invalid sub-window size %dx%d", w, h)
	}

	scale := min(w, h)
	row := y + h/2
	col := x + w/2

	// The evaluated square centered on the sub-window.
	sq := Rect{X: col - scale/2, Y: row - scale/2, W: scale, H: scale}
	if sq.X < 0 || sq.Y < 0 || sq.X+sq.W > e.cols || sq.Y+sq.H > e.rows {
		return fmt.Errorf("cascade classifier: sub-window (%d,%d %dx%d) exceeds the %dx%d image",
			x, y, w, h, e.cols, e.rows)
	}

	q := e.cascade.classify(row, col, scale, e.pix, e.dim)
	e.win = sq
	e.conf = float64(q)
	e.pattern = q > 0
	return nil
}

// IsPattern reports the decision of the last evaluated sub-window.
func (e *CascadeClassifier) IsPattern() bool { return e.pattern }

// Confidence returns the score of the last evaluated sub-window.
func (e *CascadeClassifier) Confidence() float64 { return e.conf }

// Window returns the square region actually evaluated.
func (e *CascadeClassifier) Window() Rect { return e.win }

// Clone returns an unbound classifier sharing the immutable cascade.
func (e *CascadeClassifier) Clone() Evaluator {
	return &CascadeClassifier{cascade: e.cascade}
}
