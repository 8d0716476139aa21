// Package index is an exact, brute-force cosine similarity index over a
// small immutable set of vectors.
package index

import (
	"sort"

	"github.com/pkg/errors"

	"rubberbot/internal/vector"
)

// Hit is a corpus position and its cosine score.
type Hit struct {
	Position int
	Score    float64
}

// Index holds vectors in corpus order. It is read-only after Build and safe
// for concurrent searches.
type Index struct {
	kind      vector.Kind
	dimension int
	vectors   []vector.Vector
}

// Build stores vectors in the given order. All vectors must share a kind,
// and dense vectors must share a dimension.
func Build(vectors []vector.Vector) (*Index, error) {
	if len(vectors) == 0 {
		return nil, errors.New("cannot build index from zero vectors")
	}
	idx := &Index{
		kind:    vectors[0].Kind(),
		vectors: make([]vector.Vector, len(vectors)),
	}
	if idx.kind == vector.KindDense {
		idx.dimension = vectors[0].Len()
	}
	for i, v := range vectors {
		if v.Kind() != idx.kind {
			return nil, errors.Wrapf(vector.ErrKindMismatch, "vector %d is %s, index is %s", i, v.Kind(), idx.kind)
		}
		if idx.kind == vector.KindDense && v.Len() != idx.dimension {
			return nil, errors.Errorf("vector %d has dimension %d, expected %d", i, v.Len(), idx.dimension)
		}
		idx.vectors[i] = v
	}
	return idx, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int { return len(x.vectors) }

// Kind returns the representation shared by all indexed vectors.
func (x *Index) Kind() vector.Kind { return x.kind }

// Vector returns the stored vector at position i.
func (x *Index) Vector(i int) vector.Vector { return x.vectors[i] }

// Search scores every vector against q and returns the best k, highest score
// first. Equal scores keep corpus order. k is clamped to the index size.
func (x *Index) Search(q vector.Vector, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if q.Kind() != x.kind {
		return nil, errors.Wrapf(vector.ErrKindMismatch, "query is %s, index is %s", q.Kind(), x.kind)
	}
	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		score, err := vector.Cosine(q, v)
		if err != nil {
			return nil, errors.Wrapf(err, "score position %d", i)
		}
		hits[i] = Hit{Position: i, Score: score}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}
