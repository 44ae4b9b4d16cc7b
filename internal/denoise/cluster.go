package denoise

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linkage selects the agglomerative clustering linkage rule.
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// ParseLinkage validates a linkage name from configuration.
func ParseLinkage(s string) (Linkage, bool) {
	switch Linkage(s) {
	case LinkageSingle, LinkageComplete, LinkageAverage:
		return Linkage(s), true
	}
	return "", false
}

type clusterNode struct {
	left    *clusterNode
	right   *clusterNode
	leaves  []int
	minLeaf int
}

// filterCorrelation applies the hierarchical clustering filter to a
// correlation matrix: agglomerative clustering on the dissimilarity
// d_ij = 1 - rho_ij, with every pair (i, j) assigned the correlation level
// 1 - h of the merge of height h that first joins them. The result is the
// block-averaged correlation structure implied by the dendrogram, with unit
// diagonal.
func filterCorrelation(corr *mat.SymDense, linkage Linkage) *mat.SymDense {
	n := corr.SymmetricDim()
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i != j {
				dist[i][j] = 1.0 - corr.At(i, j)
			}
		}
	}

	filtered := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		filtered.SetSym(i, i, 1.0)
	}

	clusters := make([]*clusterNode, 0, n)
	for i := 0; i < n; i++ {
		clusters = append(clusters, &clusterNode{leaves: []int{i}, minLeaf: i})
	}

	// Agglomerative clustering with deterministic tie-break.
	for len(clusters) > 1 {
		bestI := 0
		bestJ := 1
		bestD := clusterDistance(dist, clusters[0], clusters[1], linkage)

		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := clusterDistance(dist, clusters[i], clusters[j], linkage)
				if d < bestD || (d == bestD && clusterPairLess(clusters[i], clusters[j], clusters[bestI], clusters[bestJ])) {
					bestD = d
					bestI = i
					bestJ = j
				}
			}
		}

		a := clusters[bestI]
		b := clusters[bestJ]

		// Every cross pair of the merged clusters is first joined here, at
		// height bestD, so its filtered correlation is fixed to 1 - bestD.
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				filtered.SetSym(i, j, 1.0-bestD)
			}
		}

		left := a
		right := b
		if right.minLeaf < left.minLeaf {
			left, right = right, left
		}

		mergedLeaves := make([]int, 0, len(a.leaves)+len(b.leaves))
		mergedLeaves = append(mergedLeaves, left.leaves...)
		mergedLeaves = append(mergedLeaves, right.leaves...)

		merged := &clusterNode{
			left:    left,
			right:   right,
			leaves:  mergedLeaves,
			minLeaf: left.minLeaf,
		}

		next := make([]*clusterNode, 0, len(clusters)-1)
		for k := 0; k < len(clusters); k++ {
			if k == bestI || k == bestJ {
				continue
			}
			next = append(next, clusters[k])
		}
		clusters = append(next, merged)
	}

	return filtered
}

func clusterPairLess(a1, b1, a2, b2 *clusterNode) bool {
	// Tie-break by (minLeaf, then second minLeaf) of the pair.
	x1, y1 := a1.minLeaf, b1.minLeaf
	if y1 < x1 {
		x1, y1 = y1, x1
	}
	x2, y2 := a2.minLeaf, b2.minLeaf
	if y2 < x2 {
		x2, y2 = y2, x2
	}
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func clusterDistance(dist [][]float64, a, b *clusterNode, linkage Linkage) float64 {
	switch linkage {
	case LinkageComplete:
		best := 0.0
		first := true
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				d := dist[i][j]
				if first || d > best {
					best = d
					first = false
				}
			}
		}
		return best
	case LinkageAverage:
		sum := 0.0
		count := 0
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				sum += dist[i][j]
				count++
			}
		}
		if count == 0 {
			return math.Inf(1)
		}
		return sum / float64(count)
	case LinkageSingle:
		fallthrough
	default:
		best := math.Inf(1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				d := dist[i][j]
				if d < best {
					best = d
				}
			}
		}
		return best
	}
}
