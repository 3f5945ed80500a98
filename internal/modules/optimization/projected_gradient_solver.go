package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ProjectedGradientSolver runs accelerated projected gradient descent (FISTA with
// gradient-based restart) over the simplex. The step size is 1/L where L is the largest
// eigenvalue of A + epsilon·I.
type ProjectedGradientSolver struct {
	MaxIterations int
	// Tolerance is the sup-norm change between iterates at which the solve stops.
	Tolerance float64
}

// NewProjectedGradientSolver creates a projected-gradient solver with default settings.
func NewProjectedGradientSolver() *ProjectedGradientSolver {
	return &ProjectedGradientSolver{
		MaxIterations: 200000,
		Tolerance:     1e-12,
	}
}

// Name returns the solver identifier used in configuration and reports.
func (s *ProjectedGradientSolver) Name() string {
	return SolverProjectedGradient
}

// SolveSimplexQP implements QPSolver.
func (s *ProjectedGradientSolver) SolveSimplexQP(a *mat.SymDense, b []float64, epsilon float64) ([]float64, error) {
	n, err := checkProblem(a, b, epsilon)
	if err != nil {
		return nil, err
	}
	q := regularized(a, epsilon)

	var eig mat.EigenSym
	if ok := eig.Factorize(q, false); !ok {
		return nil, fmt.Errorf("%w: eigen decomposition failed", ErrSolverFailed)
	}
	lipschitz := floats.Max(eig.Values(nil))
	if !(lipschitz > 0) {
		return nil, fmt.Errorf("%w: curvature matrix is not positive definite", ErrSolverFailed)
	}
	step := 1 / lipschitz

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 200000
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-12
	}

	x := Uniform(n)
	z := Uniform(n)
	momentum := 1.0
	trial := make([]float64, n)
	delta := make([]float64, n)

	for iter := 0; iter < maxIter; iter++ {
		grad := gradient(q, b, z)
		floats.AddScaledTo(trial, z, -step, grad)
		next := ProjectSimplex(trial)

		floats.SubTo(delta, next, x)
		change := floats.Norm(delta, math.Inf(1))

		// Restart momentum when the step opposes the previous gradient.
		restart := 0.0
		for i := range z {
			restart += (z[i] - next[i]) * delta[i]
		}
		if restart > 0 {
			momentum = 1
			copy(z, next)
		} else {
			nextMomentum := (1 + math.Sqrt(1+4*momentum*momentum)) / 2
			floats.AddScaledTo(z, next, (momentum-1)/nextMomentum, delta)
			momentum = nextMomentum
		}
		x = next

		if change <= tol {
			return x, nil
		}
	}

	return nil, fmt.Errorf("%w: projected gradient exceeded %d iterations", ErrSolverNotConverged, maxIter)
}
