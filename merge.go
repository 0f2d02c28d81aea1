package patscan

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MergeDetections clusters the raw detections whose pairwise overlap ratio
// meets the minimum and reduces every cluster to one representative.
// Clustering is connectivity based, so the outcome depends only on the
// detection geometries and confidences, never on the order the scan
// produced them. The result is sorted by confidence, strongest first.
func MergeDetections(dets []Detection, mode MergeMode, overlap OverlapMode, minOverlap float64) []Detection {
	if len(dets) == 0 {
		return nil
	}

	// Union-find over the pairwise overlap graph.
	parent := make([]int, len(dets))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < len(dets); i++ {
		for j := i + 1; j < len(dets); j++ {
			if overlapRatio(dets[i].rect(), dets[j].rect(), overlap) >= minOverlap {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]Detection)
	for i, d := range dets {
		r := find(i)
		clusters[r] = append(clusters[r], d)
	}

	merged := make([]Detection, 0, len(clusters))
	for _, members := range clusters {
		// Canonical member order keeps the representative independent of
		// the raw list order, including the float summation order of the
		// weighted average.
		sortDetections(members)
		switch mode {
		case MergeAverage:
			merged = append(merged, averageCluster(members))
		default:
			merged = append(merged, bestOfCluster(members))
		}
	}

	sortDetections(merged)
	return merged
}

// overlapRatio computes the pairwise overlap of two boxes: the intersection
// area over the union area, or over the smaller box area.
func overlapRatio(a, b Rect, mode OverlapMode) float64 {
	inter := a.intersect(b)
	if inter == 0 {
		return 0
	}
	var ref int
	switch mode {
	case OverlapMin:
		ref = min(a.Area(), b.Area())
	default:
		ref = a.Area() + b.Area() - inter
	}
	if ref == 0 {
		return 0
	}
	return float64(inter) / float64(ref)
}

// bestOfCluster keeps the highest confidence member; geometry breaks ties.
func bestOfCluster(members []Detection) Detection {
	best := members[0]
	for _, d := range members[1:] {
		if d.Conf > best.Conf {
			best = d
		}
	}
	return best
}

// averageCluster reduces the cluster to its confidence-weighted mean box.
// The reported confidence is the strongest member's, since averaging the
// scores would water down a single decisive hit.
func averageCluster(members []Detection) Detection {
	n := len(members)
	if n == 1 {
		return members[0]
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	hs := make([]float64, n)
	weights := make([]float64, n)
	best := members[0].Conf

	for i, d := range members {
		xs[i] = float64(d.X)
		ys[i] = float64(d.Y)
		ws[i] = float64(d.W)
		hs[i] = float64(d.H)
		// Clamp and offset so zero or negative confidences still
		// weigh the member in.
		weights[i] = math.Max(d.Conf, 0) + 1e-9
		if d.Conf > best {
			best = d.Conf
		}
	}

	return Detection{
		X:    int(math.Round(stat.Mean(xs, weights))),
		Y:    int(math.Round(stat.Mean(ys, weights))),
		W:    int(math.Round(stat.Mean(ws, weights))),
		H:    int(math.Round(stat.Mean(hs, weights))),
		Conf: best,
	}
}

// sortDetections orders detections by confidence descending,
// then by geometry for a stable tie-break.
func sortDetections(dets []Detection) {
	sort.Slice(dets, func(i, j int) bool {
		a, b := dets[i], dets[j]
		if a.Conf != b.Conf {
			return a.Conf > b.Conf
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.W != b.W {
			return a.W < b.W
		}
		return a.H < b.H
	})
}
