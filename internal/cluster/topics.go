// Package cluster groups a batch of embeddings into topics and names each
// topic after one of its members.
package cluster

import (
	"math"
	"math/rand/v2"
)

const (
	DefaultSeed        = 42
	DefaultMaxClusters = 5
	DefaultMaxIter     = 300
	// AutoNInit is used when Options.NInit is zero.
	AutoNInit = 10

	untitledLabel = "Topic"
	fallbackLabel = "General"
)

type Options struct {
	Seed        uint64
	NInit       int
	MaxIter     int
	MaxClusters int
}

func DefaultOptions() Options {
	return Options{
		Seed:        DefaultSeed,
		NInit:       AutoNInit,
		MaxIter:     DefaultMaxIter,
		MaxClusters: DefaultMaxClusters,
	}
}

func (o Options) withDefaults() Options {
	if o.NInit <= 0 {
		o.NInit = AutoNInit
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = DefaultMaxClusters
	}
	return o
}

// ClusterCount is round(sqrt(n)) clamped to [1, maxClusters], or 0 for an
// empty batch.
func ClusterCount(n, maxClusters int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Round(math.Sqrt(float64(n))))
	return max(1, min(k, maxClusters))
}

// Assign returns a cluster id per vector. A single cluster skips k-means.
func Assign(vectors [][]float64, opts Options) []int {
	opts = opts.withDefaults()

	n := len(vectors)
	k := ClusterCount(n, opts.MaxClusters)
	if k == 0 {
		return []int{}
	}
	if k == 1 {
		return make([]int, n)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	return KMeans(vectors, k, opts.NInit, opts.MaxIter, rng).Labels
}

// Labels names every cluster after the title of its lowest-index member, or
// "Topic" when that title is empty, and returns the label of each item.
func Labels(assignments []int, titles []string) []string {
	names := map[int]string{}
	for i, c := range assignments {
		if _, ok := names[c]; ok {
			continue
		}
		title := ""
		if i < len(titles) {
			title = titles[i]
		}
		if title == "" {
			title = untitledLabel
		}
		names[c] = title
	}

	out := make([]string, len(assignments))
	for i, c := range assignments {
		out[i] = names[c]
		if out[i] == "" {
			out[i] = fallbackLabel
		}
	}
	return out
}

// Topics returns one topic label per vector.
func Topics(vectors [][]float64, titles []string, opts Options) []string {
	return Labels(Assign(vectors, opts), titles)
}
