package index

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubberbot/internal/vector"
)

func TestSearchOrdersByScoreThenPosition(t *testing.T) {
	idx, err := Build([]vector.Vector{
		vector.Dense([]float64{0, 1}),
		vector.Dense([]float64{1, 0}),
		vector.Dense([]float64{0, 2}),
		vector.Dense([]float64{1, 1}),
	})
	require.NoError(t, err)

	hits, err := idx.Search(vector.Dense([]float64{0, 1}), 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-12)
	assert.Equal(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, 3, hits[2].Position)
	assert.Equal(t, 1, hits[3].Position)
}

func TestSearchClampsK(t *testing.T) {
	idx, err := Build([]vector.Vector{vector.Dense([]float64{1}), vector.Dense([]float64{-1})})
	require.NoError(t, err)

	hits, err := idx.Search(vector.Dense([]float64{1}), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search(vector.Dense([]float64{1}), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vecs := make([]vector.Vector, 60)
	for i := range vecs {
		values := make([]float64, 16)
		for j := range values {
			values[j] = rng.NormFloat64()
		}
		vecs[i] = vector.Dense(values)
	}
	idx, err := Build(vecs)
	require.NoError(t, err)

	q := vector.Dense(vecs[13].Values())
	hits, err := idx.Search(q, 5)
	require.NoError(t, err)

	type pair struct {
		pos   int
		score float64
	}
	all := make([]pair, len(vecs))
	for i, v := range vecs {
		s, err := vector.Cosine(q, v)
		require.NoError(t, err)
		all[i] = pair{i, s}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	require.Len(t, hits, 5)
	assert.Equal(t, 13, hits[0].Position)
	for i, h := range hits {
		assert.Equal(t, all[i].pos, h.Position)
		assert.Equal(t, all[i].score, h.Score)
	}
}

func TestSearchSparse(t *testing.T) {
	idx, err := Build([]vector.Vector{
		vector.Sparse([]vector.Term{{Index: 0, Weight: 1}}),
		vector.Sparse([]vector.Term{{Index: 1, Weight: 1}}),
	})
	require.NoError(t, err)

	hits, err := idx.Search(vector.Sparse([]vector.Term{{Index: 1, Weight: 3}}), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Position)
}

func TestBuildRejectsMixedVectors(t *testing.T) {
	_, err := Build([]vector.Vector{vector.Dense([]float64{1}), vector.Sparse(nil)})
	assert.ErrorIs(t, err, vector.ErrKindMismatch)

	_, err = Build([]vector.Vector{vector.Dense([]float64{1}), vector.Dense([]float64{1, 2})})
	assert.Error(t, err)

	_, err = Build(nil)
	assert.Error(t, err)
}

func TestSearchRejectsWrongKind(t *testing.T) {
	idx, err := Build([]vector.Vector{vector.Dense([]float64{1})})
	require.NoError(t, err)

	_, err = idx.Search(vector.Sparse(nil), 1)
	assert.ErrorIs(t, err, vector.ErrKindMismatch)
}
