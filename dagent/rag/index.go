package rag

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// FlatIndex is a brute-force L2 nearest neighbor index. Exact and
// unsorted inserts; fine for the few hundred chunks one document yields.
type FlatIndex struct {
	dim     int
	vectors [][]float64
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim < 1 {
		return nil, fmt.Errorf("flat index: dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// NewFlatIndexFrom builds an index holding the given vectors, taking the
// dimension from the first one.
func NewFlatIndexFrom(vectors [][]float64) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("flat index: no vectors")
	}
	index, err := NewFlatIndex(len(vectors[0]))
	if err != nil {
		return nil, err
	}
	if err := index.Add(vectors...); err != nil {
		return nil, err
	}
	return index, nil
}

// Add appends vectors to the index.
func (ix *FlatIndex) Add(vectors ...[]float64) error {
	for _, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("flat index: vector dimension %d, index dimension %d", len(v), ix.dim)
		}
		ix.vectors = append(ix.vectors, v)
	}
	return nil
}

// Len reports the number of indexed vectors.
func (ix *FlatIndex) Len() int {
	return len(ix.vectors)
}

// Search returns the indices of the k vectors closest to query by L2
// distance, nearest first, together with the distances. k is clamped to
// the index size.
func (ix *FlatIndex) Search(query []float64, k int) ([]int, []float64, error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("flat index: query dimension %d, index dimension %d", len(query), ix.dim)
	}
	if k < 1 || len(ix.vectors) == 0 {
		return nil, nil, nil
	}
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}

	type hit struct {
		index    int
		distance float64
	}
	hits := make([]hit, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = hit{index: i, distance: floats.Distance(query, v, 2)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].distance == hits[b].distance {
			return hits[a].index < hits[b].index
		}
		return hits[a].distance < hits[b].distance
	})

	indices := make([]int, k)
	distances := make([]float64, k)
	for i := 0; i < k; i++ {
		indices[i] = hits[i].index
		distances[i] = hits[i].distance
	}
	return indices, distances, nil
}
