package optimization

import "gonum.org/v1/gonum/mat"

// QPSolver solves the per-step allocation problem:
//
//	minimize   0.5·yᵀAy + bᵀy + (epsilon/2)·||y||²
//	subject to Σy = 1, y ≥ 0
//
// A is symmetric positive-definite and must not be modified.
// Implementations must be safe for concurrent use by independent runs.
type QPSolver interface {
	Name() string
	SolveSimplexQP(a *mat.SymDense, b []float64, epsilon float64) ([]float64, error)
}

// StepObserver receives the duration of every per-step solve.
type StepObserver func(solver string, step int, seconds float64)
