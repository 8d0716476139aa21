// Package vector defines the text representation used by the index: either a
// dense float array or a sparse set of weighted vocabulary terms.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Kind distinguishes dense from sparse vectors.
type Kind int

const (
	KindDense Kind = iota + 1
	KindSparse
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	default:
		return "unknown"
	}
}

// Term is a single non-zero weight of a sparse vector.
type Term struct {
	Index  int
	Weight float64
}

// Vector holds either dense values or sparse terms, never both.
// The zero value is an empty dense vector.
type Vector struct {
	kind  Kind
	dense []float64
	terms []Term
}

// Dense wraps values as a dense vector. The slice is not copied.
func Dense(values []float64) Vector {
	return Vector{kind: KindDense, dense: values}
}

// Sparse builds a sparse vector. Zero weights are dropped and terms are
// sorted by index; duplicate indices are summed.
func Sparse(terms []Term) Vector {
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		if t.Weight != 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	merged := out[:0]
	for _, t := range out {
		if n := len(merged); n > 0 && merged[n-1].Index == t.Index {
			merged[n-1].Weight += t.Weight
			continue
		}
		merged = append(merged, t)
	}
	return Vector{kind: KindSparse, terms: merged}
}

// Kind reports the representation.
func (v Vector) Kind() Kind {
	if v.kind == 0 {
		return KindDense
	}
	return v.kind
}

// Values returns the dense values; nil for sparse vectors.
func (v Vector) Values() []float64 { return v.dense }

// Terms returns the sparse terms; nil for dense vectors.
func (v Vector) Terms() []Term { return v.terms }

// Len is the dense dimension or the number of non-zero sparse terms.
func (v Vector) Len() int {
	if v.Kind() == KindSparse {
		return len(v.terms)
	}
	return len(v.dense)
}

// Norm returns the L2 norm.
func (v Vector) Norm() float64 {
	sum := 0.0
	if v.Kind() == KindSparse {
		for _, t := range v.terms {
			sum += t.Weight * t.Weight
		}
	} else {
		for _, x := range v.dense {
			sum += x * x
		}
	}
	return math.Sqrt(sum)
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool { return v.Norm() == 0 }

// Normalize returns a unit-length copy; the zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	if v.Kind() == KindSparse {
		terms := make([]Term, len(v.terms))
		for i, t := range v.terms {
			terms[i] = Term{Index: t.Index, Weight: t.Weight / n}
		}
		return Vector{kind: KindSparse, terms: terms}
	}
	values := make([]float64, len(v.dense))
	for i, x := range v.dense {
		values[i] = x / n
	}
	return Dense(values)
}

// ErrKindMismatch is returned when comparing dense with sparse vectors.
var ErrKindMismatch = errors.New("vector kinds differ")

// Dot returns the inner product of two vectors of the same kind.
func Dot(a, b Vector) (float64, error) {
	if a.Kind() != b.Kind() {
		return 0, ErrKindMismatch
	}
	if a.Kind() == KindSparse {
		return sparseDot(a.terms, b.terms), nil
	}
	if len(a.dense) != len(b.dense) {
		return 0, fmt.Errorf("dense dimension mismatch: %d vs %d", len(a.dense), len(b.dense))
	}
	sum := 0.0
	for i := range a.dense {
		sum += a.dense[i] * b.dense[i]
	}
	return sum, nil
}

// Cosine returns the cosine similarity of a and b. A zero vector on either
// side yields 0.
func Cosine(a, b Vector) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (na * nb), nil
}

func sparseDot(a, b []Term) float64 {
	sum := 0.0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Index == b[j].Index:
			sum += a[i].Weight * b[j].Weight
			i++
			j++
		case a[i].Index < b[j].Index:
			i++
		default:
			j++
		}
	}
	return sum
}
