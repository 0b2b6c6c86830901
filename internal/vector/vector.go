// Package vector converts embedding vectors between their in-memory form
// and the bracketed text literal stored in the database, and provides the
// small amount of vector arithmetic the clustering engine needs.
package vector

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encode serializes a vector as a bracketed, comma-joined decimal literal,
// e.g. "[0.25,-1,0.5]". Non-finite components (NaN, ±Inf) are coerced to 0
// before encoding so the literal always parses back.
func Encode(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			f64 = 0
		}
		b.WriteString(strconv.FormatFloat(f64, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Decode parses a bracketed vector literal back to a float32 slice.
// An empty literal "[]" decodes to an empty vector.
func Decode(literal string) ([]float32, error) {
	s := strings.TrimSpace(literal)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q: missing brackets", literal)
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector literal: component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// FromFloat64s converts a float64 slice (the shape JSON decoders and some
// providers produce) to the float32 form used everywhere else.
func FromFloat64s(in []float64) []float32 {
	v := make([]float32, len(in))
	for i, f := range in {
		v[i] = float32(f)
	}
	return v
}

// RunningMean folds the next sample into a running mean of count samples.
// With count <= 0 the next sample is returned unchanged. The dimensions of
// current and next must match.
func RunningMean(current []float32, count int, next []float32) ([]float32, error) {
	if count <= 0 {
		return next, nil
	}
	if len(current) != len(next) {
		return nil, fmt.Errorf("dimension mismatch: %d vs %d", len(current), len(next))
	}

	out := make([]float32, len(current))
	n := float64(count)
	for i := range current {
		out[i] = float32((float64(current[i])*n + float64(next[i])) / (n + 1))
	}
	return out, nil
}

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns 0 for zero vectors, and an error if dimensions don't match. The
// result stays in float64 so threshold comparisons don't lose precision.
// Uses a single-pass computation for performance.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64

	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	// Handle zero vectors
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / math.Sqrt(normA*normB), nil
}
