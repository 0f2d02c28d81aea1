package patscan

// Rect is an axis-aligned rectangle expressed as the top-left corner
// plus the width and height, in pixel units.
type Rect struct {
	X, Y, W, H int
}

// Area returns the rectangle surface in square pixels.
func (r Rect) Area() int {
	return r.W * r.H
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y &&
		o.X+o.W <= r.X+r.W && o.Y+o.H <= r.Y+r.H
}

// intersect returns the overlapping surface of two rectangles.
func (r Rect) intersect(o Rect) int {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.W, o.X+o.W)
	y1 := min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0)
}

// Detection is a single raw or merged detection expressed
// in the coordinate frame of the source image.
type Detection struct {
	X    int     `json:"x"`
	Y    int     `json:"y"`
	W    int     `json:"w"`
	H    int     `json:"h"`
	Conf float64 `json:"confidence"`
}

// rect returns the detection bounding box.
func (d Detection) rect() Rect {
	return Rect{X: d.X, Y: d.Y, W: d.W, H: d.H}
}

// Stats aggregates the per-scan counters. For every completed scan
// Scanned+Pruned equals the number of visited sub-windows and
// Accepted never exceeds Scanned.
type Stats struct {
	Scanned  uint64 `json:"scanned"`
	Pruned   uint64 `json:"pruned"`
	Accepted uint64 `json:"accepted"`
}

func (s *Stats) add(o Stats) {
	s.Scanned += o.Scanned
	s.Pruned += o.Pruned
	s.Accepted += o.Accepted
}

// Result holds the outcome of a scan session: the final detection set
// produced by the configured selector and the scan statistics.
type Result struct {
	Detections []Detection `json:"detections"`
	Stats      Stats       `json:"stats"`
}
