package patscan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testCascade serializes a single depth-1 tree comparing the pixel one step
// left of the window center against the pixel one step right of it. The leaf
// predictions make the cascade accept brightness increasing to the right.
func testCascade() []byte {
	var buf []byte
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	f32 := func(v float32) { u32(math.Float32bits(v)) }

	buf = append(buf, make([]byte, 8)...) // header, skipped by the unpacker
	u32(1)                                // tree depth
	u32(1)                                // tree count

	// Comparison codes of the single non-root node, 24.8 fixed point:
	// (row+0, col-64/256*s) vs (row+0, col+64/256*s).
	colOff := int8(-64)
	buf = append(buf, 0, byte(colOff), 0, 64)

	f32(-1) // leaf: left pixel brighter
	f32(1)  // leaf: right pixel brighter or equal
	f32(0)  // stage threshold

	return buf
}

// gradientImage returns rows x cols pixels whose brightness grows to the
// right when ascending is set, and to the left otherwise.
func gradientImage(rows, cols int, ascending bool) []uint8 {
	pix := make([]uint8, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := c * 255 / (cols - 1)
			if !ascending {
				v = 255 - v
			}
			pix[r*cols+c] = uint8(v)
		}
	}
	return pix
}

func TestUnpackCascade_Errors(t *testing.T) {
	assert := assert.New(t)

	_, err := UnpackCascade(nil)
	assert.Error(err)

	_, err = UnpackCascade(make([]byte, 10))
	assert.Error(err)

	packet := testCascade()
	_, err = UnpackCascade(packet[:len(packet)-2])
	assert.Error(err, "a truncated tree payload must fail")

	// A zero tree count is malformed.
	broken := testCascade()
	binary.LittleEndian.PutUint32(broken[12:], 0)
	_, err = UnpackCascade(broken)
	assert.Error(err)
}

func TestCascadeClassifier_Decision(t *testing.T) {
	assert := assert.New(t)

	cc, err := UnpackCascade(testCascade())
	assert.NoError(err)

	e := NewCascadeClassifier(cc)
	assert.NoError(e.SetImage(gradientImage(16, 16, true), 16, 16, 16))

	assert.NoError(e.SetSubWindow(4, 4, 8, 8))
	assert.True(e.IsPattern())
	assert.Equal(1.0, e.Confidence())

	// The same sub-window always yields the same decision and score.
	assert.NoError(e.SetSubWindow(4, 4, 8, 8))
	assert.True(e.IsPattern())
	assert.Equal(1.0, e.Confidence())

	assert.NoError(e.SetImage(gradientImage(16, 16, false), 16, 16, 16))
	assert.NoError(e.SetSubWindow(4, 4, 8, 8))
	assert.False(e.IsPattern())
	assert.Negative(e.Confidence())
}

func TestCascadeClassifier_RefinedWindow(t *testing.T) {
	assert := assert.New(t)

	cc, err := UnpackCascade(testCascade())
	assert.NoError(err)

	e := NewCascadeClassifier(cc)
	assert.NoError(e.SetImage(gradientImage(16, 16, true), 16, 16, 16))

	// A non-square sub-window is refined to its largest centered square.
	assert.NoError(e.SetSubWindow(2, 2, 4, 6))
	assert.Equal(Rect{X: 2, Y: 3, W: 4, H: 4}, e.Window())
}

func TestCascadeClassifier_Failures(t *testing.T) {
	assert := assert.New(t)

	cc, err := UnpackCascade(testCascade())
	assert.NoError(err)
	e := NewCascadeClassifier(cc)

	assert.Error(e.SetSubWindow(0, 0, 4, 4), "not bound to an image yet")

	assert.Error(e.SetImage(nil, 8, 8, 8))
	assert.Error(e.SetImage(make([]uint8, 16), 8, 8, 8))
	assert.Error(e.SetImage(make([]uint8, 64), 8, 8, 4))

	assert.NoError(e.SetImage(gradientImage(8, 8, true), 8, 8, 8))
	assert.Error(e.SetSubWindow(6, 6, 4, 4), "the window exceeds the image")
	assert.Error(e.SetSubWindow(0, 0, 0, 4))
}

func TestCascadeClassifier_CloneSharesCascade(t *testing.T) {
	assert := assert.New(t)

	cc, err := UnpackCascade(testCascade())
	assert.NoError(err)

	e := NewCascadeClassifier(cc)
	assert.NoError(e.SetImage(gradientImage(16, 16, true), 16, 16, 16))

	clone := e.Clone().(*CascadeClassifier)
	assert.Error(clone.SetSubWindow(4, 4, 8, 8), "the clone starts unbound")

	assert.NoError(clone.SetImage(gradientImage(16, 16, true), 16, 16, 16))
	assert.NoError(clone.SetSubWindow(4, 4, 8, 8))
	assert.True(clone.IsPattern())
}
