package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActiveSetSolver is a primal active-set method specialised to the probability simplex.
//
// Starting from the uniform allocation, it keeps a working set of components pinned at
// zero. Each iteration minimises the objective over the face defined by the free
// components (an equality-constrained QP solved through a Cholesky factorisation of the
// free block), steps towards that minimiser until a free component hits zero, and
// releases the pinned component with the most negative multiplier once the face
// minimiser is reached. The solution is exact up to round-off.
type ActiveSetSolver struct {
	// MaxIterations caps working-set changes. Zero means 50·n + 100.
	MaxIterations int
	// Tolerance is the relative threshold below which steps and multipliers count as zero.
	Tolerance float64
}

// NewActiveSetSolver creates an active-set solver with default settings.
func NewActiveSetSolver() *ActiveSetSolver {
	return &ActiveSetSolver{Tolerance: 1e-10}
}

// Name returns the solver identifier used in configuration and reports.
func (s *ActiveSetSolver) Name() string {
	return SolverActiveSet
}

// SolveSimplexQP implements QPSolver.
func (s *ActiveSetSolver) SolveSimplexQP(a *mat.SymDense, b []float64, epsilon float64) ([]float64, error) {
	n, err := checkProblem(a, b, epsilon)
	if err != nil {
		return nil, err
	}
	q := regularized(a, epsilon)

	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-10
	}
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50*n + 100
	}

	y := Uniform(n)
	pinned := make([]bool, n)

	for iter := 0; iter < maxIter; iter++ {
		grad := gradient(q, b, y)
		free := freeIndices(pinned)

		p, err := faceStep(q, grad, free)
		if err != nil {
			return nil, err
		}

		if floats.Norm(p, math.Inf(1)) > tol {
			alpha, blocking := 1.0, -1
			for _, i := range free {
				if p[i] < 0 {
					if ratio := -y[i] / p[i]; ratio < alpha {
						alpha, blocking = ratio, i
					}
				}
			}
			floats.AddScaled(y, alpha, p)
			if blocking >= 0 {
				y[blocking] = 0
				pinned[blocking] = true
				continue
			}
			// Full step: y now minimises the objective on the current face.
			grad = gradient(q, b, y)
		}

		// Multiplier of the sum constraint from the free block, then of each pinned bound.
		nu := 0.0
		for _, i := range free {
			nu -= grad[i]
		}
		nu /= float64(len(free))

		scale := 1.0
		for _, g := range grad {
			scale = math.Max(scale, math.Abs(g))
		}

		release, worst := -1, -tol*scale
		for i, isPinned := range pinned {
			if !isPinned {
				continue
			}
			if lambda := grad[i] + nu; lambda < worst {
				release, worst = i, lambda
			}
		}
		if release < 0 {
			return y, nil
		}
		pinned[release] = false
	}

	return nil, fmt.Errorf("%w: active set exceeded %d iterations", ErrSolverNotConverged, maxIter)
}

func freeIndices(pinned []bool) []int {
	free := make([]int, 0, len(pinned))
	for i, isPinned := range pinned {
		if !isPinned {
			free = append(free, i)
		}
	}
	return free
}

// faceStep solves the equality-constrained sub-problem on the free components:
//
//	minimize 0.5·pᵀQp + gᵀp  subject to Σp = 0, p_i = 0 for pinned i
//
// p_F = -Q_FF⁻¹(g_F + ν·1) with ν chosen so that Σp_F = 0.
func faceStep(q *mat.SymDense, grad []float64, free []int) ([]float64, error) {
	k := len(free)
	step := make([]float64, len(grad))
	if k == 0 {
		return nil, fmt.Errorf("%w: every component is pinned at zero", ErrSolverFailed)
	}

	qf := mat.NewSymDense(k, nil)
	gf := mat.NewVecDense(k, nil)
	ones := mat.NewVecDense(k, nil)
	for r, i := range free {
		gf.SetVec(r, grad[i])
		ones.SetVec(r, 1)
		for c := r; c < k; c++ {
			qf.SetSym(r, c, q.At(i, free[c]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(qf); !ok {
		return nil, fmt.Errorf("%w: curvature matrix is not positive definite", ErrSolverFailed)
	}

	var u, v mat.VecDense
	if err := chol.SolveVecTo(&u, gf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverFailed, err)
	}
	if err := chol.SolveVecTo(&v, ones); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverFailed, err)
	}

	denominator := mat.Sum(&v)
	if denominator <= 0 {
		return nil, fmt.Errorf("%w: degenerate face system", ErrSolverFailed)
	}
	nu := -mat.Sum(&u) / denominator

	for r, i := range free {
		step[i] = -(u.AtVec(r) + nu*v.AtVec(r))
	}
	return step, nil
}
