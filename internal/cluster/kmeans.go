package cluster

import (
	"math"
	"math/rand/v2"
)

// Result is one k-means solution. Labels[i] is the cluster of point i.
type Result struct {
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// KMeans partitions points into k clusters with k-means++ seeding and Lloyd
// iterations, keeping the lowest-inertia solution of nInit runs. All
// randomness comes from rng, so a fixed seed gives a fixed result. points is
// never modified.
func KMeans(points [][]float64, k, nInit, maxIter int, rng *rand.Rand) Result {
	n := len(points)
	if n == 0 {
		return Result{}
	}
	k = max(1, min(k, n))
	nInit = max(1, nInit)
	maxIter = max(1, maxIter)

	var best Result
	for run := 0; run < nInit; run++ {
		res := lloyd(points, seedCentroids(points, k, rng), maxIter)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

// seedCentroids picks k initial centers: the first uniformly, each next one
// with probability proportional to its squared distance from the nearest
// center chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(n)]))

	closest := make([]float64, n)
	for i, p := range points {
		closest[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range closest {
			total += d
		}

		next := -1
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range closest {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
			// rounding can leave target marginally positive
			if next < 0 {
				next = lastPositive(closest)
			}
		} else {
			// every point coincides with a center
			next = rng.IntN(n)
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < closest[i] {
				closest[i] = d
			}
		}
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64, maxIter int) Result {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++

		changed := false
		for i, p := range points {
			c := nearest(p, centroids)
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		recompute(points, labels, centroids)
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}

	return Result{Labels: labels, Centroids: centroids, Inertia: inertia, Iterations: iter}
}

// recompute moves every centroid to the mean of its members. An empty cluster
// takes over the point farthest from its own centroid.
func recompute(points [][]float64, labels []int, centroids [][]float64) {
	dim := len(points[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	for i, p := range points {
		c := labels[i]
		counts[c]++
		for d, x := range p {
			sums[c][d] += x
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
		centroids[c] = sums[c]
	}

	for c := range centroids {
		if counts[c] > 0 {
			continue
		}

		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := sqDist(p, centroids[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}

		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		centroids[c] = clone(points[far])
	}
}

// nearest returns the closest centroid; ties go to the lowest index.
func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func lastPositive(v []float64) int {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] > 0 {
			return i
		}
	}
	return len(v) - 1
}
