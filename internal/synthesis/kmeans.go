package synthesis

import (
	"math"
	"math/rand"
)

// kmeans clusters unit-length vectors by cosine similarity. Centroids
// are initialised by sampling without replacement; iteration stops when
// assignments stabilise or after maxIter rounds. Empty clusters are
// dropped from the result.
func kmeans(vectors [][]float32, k, maxIter int, rng *rand.Rand) [][]int {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k >= n {
		out := make([][]int, n)
		for i := range out {
			out[i] = []int{i}
		}
		return out
	}

	centroids := make([][]float32, k)
	for i, idx := range rng.Perm(n)[:k] {
		centroids[i] = append([]float32(nil), vectors[idx]...)
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestSim := 0, float32(math.Inf(-1))
			for c, centroid := range centroids {
				if sim := cosine32(v, centroid); sim > bestSim {
					best, bestSim = c, sim
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range centroids {
			mean := meanVector(vectors, assign, c)
			if mean != nil {
				centroids[c] = mean
			}
		}
	}

	members := make([][]int, k)
	for i, c := range assign {
		members[c] = append(members[c], i)
	}
	out := members[:0]
	for _, m := range members {
		if len(m) > 0 {
			out = append(out, m)
		}
	}
	return out
}

// meanVector averages the vectors assigned to cluster c, or nil when
// the cluster is empty.
func meanVector(vectors [][]float32, assign []int, c int) []float32 {
	var mean []float32
	count := 0
	for i, a := range assign {
		if a != c {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(vectors[i]))
		}
		for j, v := range vectors[i] {
			mean[j] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	inv := 1 / float32(count)
	for j := range mean {
		mean[j] *= inv
	}
	return mean
}

func cosine32(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
