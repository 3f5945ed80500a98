package optimization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FeasibilityTolerance bounds how far a solver result may sit outside the simplex
// before it is treated as a failed solve rather than round-off.
const FeasibilityTolerance = 1e-6

// Uniform returns the allocation 1/n for each of n assets.
func Uniform(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}
	return x
}

// ProjectSimplex returns the Euclidean projection of v onto the probability simplex.
func ProjectSimplex(v []float64) []float64 {
	n := len(v)
	u := make([]float64, n)
	copy(u, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cumulative, theta float64
	for j := 0; j < n; j++ {
		cumulative += u[j]
		t := (cumulative - 1) / float64(j+1)
		if u[j]-t > 0 {
			theta = t
		}
	}

	x := make([]float64, n)
	for i := range v {
		x[i] = math.Max(v[i]-theta, 0)
	}
	return x
}

// cleanSimplex validates a solver result and removes floating-point residue:
// tiny negatives are clipped to zero and the vector is renormalised.
func cleanSimplex(x []float64) ([]float64, error) {
	sum := 0.0
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: component %d is not finite", ErrSolverFailed, i)
		}
		if v < -FeasibilityTolerance {
			return nil, fmt.Errorf("%w: component %d is negative (%g)", ErrSolverFailed, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > FeasibilityTolerance {
		return nil, fmt.Errorf("%w: weights sum to %g", ErrSolverFailed, sum)
	}

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(0, v)
	}
	floats.Scale(1/math.Max(floats.Sum(out), 1e-10), out)
	return out, nil
}

// regularized returns A + epsilon·I as a new matrix.
func regularized(a *mat.SymDense, epsilon float64) *mat.SymDense {
	n := a.SymmetricDim()
	q := mat.NewSymDense(n, nil)
	q.CopySym(a)
	if epsilon != 0 {
		for i := 0; i < n; i++ {
			q.SetSym(i, i, q.At(i, i)+epsilon)
		}
	}
	return q
}

// gradient returns q·y + b.
func gradient(q *mat.SymDense, b, y []float64) []float64 {
	n := len(y)
	var g mat.VecDense
	g.MulVec(q, mat.NewVecDense(n, y))
	out := make([]float64, n)
	for i := range out {
		out[i] = g.AtVec(i) + b[i]
	}
	return out
}

func checkProblem(a *mat.SymDense, b []float64, epsilon float64) (int, error) {
	if a == nil {
		return 0, fmt.Errorf("%w: nil curvature matrix", ErrSolverFailed)
	}
	n := a.SymmetricDim()
	if n == 0 {
		return 0, fmt.Errorf("%w: empty problem", ErrSolverFailed)
	}
	if len(b) != n {
		return 0, fmt.Errorf("%w: linear term has %d entries, expected %d", ErrSolverFailed, len(b), n)
	}
	if epsilon < 0 || math.IsNaN(epsilon) || math.IsInf(epsilon, 0) {
		return 0, fmt.Errorf("%w: epsilon must be finite and non-negative, got %g", ErrSolverFailed, epsilon)
	}
	return n, nil
}
