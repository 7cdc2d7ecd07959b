package cluster

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
		{-10, 10}, {-10.1, 10}, {-10, 10.1},
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	res := KMeans(blobs(), 3, 5, 100, rng)

	require.Len(t, res.Labels, 9)
	for g := 0; g < 3; g++ {
		base := res.Labels[g*3]
		assert.Equal(t, base, res.Labels[g*3+1])
		assert.Equal(t, base, res.Labels[g*3+2])
	}
	assert.NotEqual(t, res.Labels[0], res.Labels[3])
	assert.NotEqual(t, res.Labels[3], res.Labels[6])
	assert.NotEqual(t, res.Labels[0], res.Labels[6])
	assert.Less(t, res.Inertia, 1.0)
}

func TestKMeansDoesNotModifyInput(t *testing.T) {
	points := blobs()
	before := make([][]float64, len(points))
	for i, p := range points {
		before[i] = clone(p)
	}

	KMeans(points, 3, 3, 100, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, before, points)
}

func TestKMeansIdenticalPoints(t *testing.T) {
	points := [][]float64{{1, 0}, {1, 0}, {1, 0}, {1, 0}}
	res := KMeans(points, 2, 2, 50, rand.New(rand.NewPCG(3, 3)))

	require.Len(t, res.Labels, 4)
	for _, l := range res.Labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 2)
	}
	assert.Equal(t, 0.0, res.Inertia)
}

func TestKMeansClampsK(t *testing.T) {
	res := KMeans([][]float64{{0}, {1}}, 5, 1, 10, rand.New(rand.NewPCG(1, 2)))
	assert.Len(t, res.Centroids, 2)
	assert.NotEqual(t, res.Labels[0], res.Labels[1])

	assert.Empty(t, KMeans(nil, 3, 1, 10, rand.New(rand.NewPCG(1, 2))).Labels)
}
