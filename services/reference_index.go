package services

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for 512-dim face embeddings
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswMinReferences is the reference set size below which an exact scan
	// beats building a graph. Small classes stay on the exact path, which is
	// also fully deterministic.
	hnswMinReferences = 128
)

// refEntry is one labeled reference embedding: a crop with a known student.
type refEntry struct {
	CropID    uint
	StudentID uint
	Embedding []float32
}

// Neighbor is one reference ranked against a query embedding.
type Neighbor struct {
	CropID     uint
	StudentID  uint
	Similarity float32
}

// ReferenceIndex answers k-nearest-neighbor queries over one class's labeled
// embeddings under one model. Small sets are scanned exactly; large sets get
// an HNSW graph with cosine distance.
type ReferenceIndex struct {
	entries []refEntry
	graph   *hnsw.Graph[uint]
	byCrop  map[uint]*refEntry
	mu      sync.RWMutex
}

// NewReferenceIndex builds an index over the given reference entries
func NewReferenceIndex(entries []refEntry) *ReferenceIndex {
	ri := &ReferenceIndex{
		entries: entries,
		byCrop:  make(map[uint]*refEntry, len(entries)),
	}
	for i := range entries {
		ri.byCrop[entries[i].CropID] = &entries[i]
	}

	if len(entries) >= hnswMinReferences {
		g := hnsw.NewGraph[uint]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
		g.Distance = hnsw.CosineDistance
		for i := range entries {
			g.Add(hnsw.MakeNode(entries[i].CropID, entries[i].Embedding))
		}
		ri.graph = g
	}
	return ri
}

// Size returns the number of indexed references
func (ri *ReferenceIndex) Size() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.entries)
}

// Search returns the k references most similar to the query, highest
// similarity first. Ties are broken by crop ID so repeated queries over an
// unchanged reference set order identically. k is clipped to the set size.
func (ri *ReferenceIndex) Search(query []float32, k int) []Neighbor {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	if k > len(ri.entries) {
		k = len(ri.entries)
	}
	if k <= 0 {
		return nil
	}

	if ri.graph != nil {
		nodes := ri.graph.Search(query, k)
		neighbors := make([]Neighbor, 0, len(nodes))
		for _, n := range nodes {
			entry, ok := ri.byCrop[n.Key]
			if !ok {
				continue
			}
			neighbors = append(neighbors, Neighbor{
				CropID:     entry.CropID,
				StudentID:  entry.StudentID,
				Similarity: CosineSimilarity(query, n.Value),
			})
		}
		sortNeighbors(neighbors)
		return neighbors
	}

	neighbors := make([]Neighbor, 0, len(ri.entries))
	for i := range ri.entries {
		neighbors = append(neighbors, Neighbor{
			CropID:     ri.entries[i].CropID,
			StudentID:  ri.entries[i].StudentID,
			Similarity: CosineSimilarity(query, ri.entries[i].Embedding),
		})
	}
	sortNeighbors(neighbors)
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

func sortNeighbors(neighbors []Neighbor) {
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].CropID < neighbors[j].CropID
	})
}
