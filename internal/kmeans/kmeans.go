// Package kmeans clusters RGB pixels. It summarizes flow images by their
// dominant colours, and so by their dominant motion directions.
package kmeans

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Cluster is one centroid and the number of pixels assigned to it.
type Cluster struct {
	Center [3]float64
	Size   int
}

// Fit clusters pixels into at most k clusters in at most iterations rounds,
// stopping early once no centroid moves by more than one level. Initial
// centres are picked from pixels with rng; pixels is not modified.
// Clusters are returned largest first.
func Fit(pixels [][3]uint8, k, iterations int, rng *rand.Rand) []Cluster {
	k = min(k, len(pixels))
	if k <= 0 {
		return nil
	}
	centroids := initCenters(pixels, k, rng)
	assignments := make([]int, len(pixels))

	for iter := 0; iter < iterations; iter++ {
		for i, px := range pixels {
			assignments[i] = nearest(px, centroids)
		}

		sums := make([][3]float64, k)
		counts := make([]int, k)
		for i, a := range assignments {
			for c := 0; c < 3; c++ {
				sums[a][c] += float64(pixels[i][c])
			}
			counts[a]++
		}

		converged := true
		for i := range centroids {
			// an empty cluster keeps its centre
			if counts[i] == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				v := sums[i][c] / float64(counts[i])
				if math.Abs(centroids[i][c]-v) > 1.0 {
					converged = false
				}
				centroids[i][c] = v
			}
		}
		if converged {
			break
		}
	}

	out := make([]Cluster, k)
	for i := range out {
		out[i].Center = centroids[i]
	}
	for _, px := range pixels {
		out[nearest(px, centroids)].Size++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	return out
}

// initCenters seeds k-means++ style: each further centre is drawn with
// probability proportional to its squared distance from the nearest centre
// already chosen.
func initCenters(pixels [][3]uint8, k int, rng *rand.Rand) [][3]float64 {
	centers := make([][3]float64, 0, k)
	centers = append(centers, toFloat(pixels[rng.IntN(len(pixels))]))
	dist := make([]float64, len(pixels))
	for len(centers) < k {
		total := 0.0
		for i, px := range pixels {
			dist[i] = sqDist(px, centers[nearest(px, centers)])
			total += dist[i]
		}
		if total == 0 {
			centers = append(centers, toFloat(pixels[rng.IntN(len(pixels))]))
			continue
		}
		r := rng.Float64() * total
		pick := len(pixels) - 1
		for i, d := range dist {
			if r < d {
				pick = i
				break
			}
			r -= d
		}
		centers = append(centers, toFloat(pixels[pick]))
	}
	return centers
}

func toFloat(px [3]uint8) [3]float64 {
	return [3]float64{float64(px[0]), float64(px[1]), float64(px[2])}
}

func sqDist(px [3]uint8, c [3]float64) float64 {
	d := 0.0
	for j := 0; j < 3; j++ {
		delta := float64(px[j]) - c[j]
		d += delta * delta
	}
	return d
}

func nearest(px [3]uint8, centers [][3]float64) int {
	best := 0
	minDist := math.MaxFloat64
	for i, c := range centers {
		if d := sqDist(px, c); d < minDist {
			minDist = d
			best = i
		}
	}
	return best
}
