// Package optimization computes portfolio allocations with the
// Follow-The-Quadratized-Leader online learner.
//
// After each observed vector of return relatives the learner adds a quadratic
// surrogate of the log-wealth loss to an accumulated objective and re-solves a
// simplex-constrained quadratic program for the next allocation.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultRidge is the multiple of the identity the curvature matrix starts from.
// It keeps the first quadratic program strictly convex before any data arrives.
const DefaultRidge = 1e-3

// Solver identifiers accepted by NewSolver.
const (
	SolverActiveSet         = "active_set"
	SolverProjectedGradient = "projected_gradient"
)

// NewSolver returns the solver registered under name.
func NewSolver(name string) (QPSolver, error) {
	switch name {
	case SolverActiveSet, "":
		return NewActiveSetSolver(), nil
	case SolverProjectedGradient:
		return NewProjectedGradientSolver(), nil
	default:
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
}

// Engine produces allocation sequences from return relatives.
// An Engine holds no per-run state and may serve concurrent runs.
type Engine struct {
	solver   QPSolver
	ridge    float64
	observer StepObserver
	log      zerolog.Logger
}

// NewEngine creates an engine backed by solver.
func NewEngine(solver QPSolver, log zerolog.Logger) *Engine {
	return &Engine{
		solver: solver,
		ridge:  DefaultRidge,
		log:    log.With().Str("component", "ftql_engine").Logger(),
	}
}

// SetStepObserver registers a callback invoked after every per-step solve.
func (e *Engine) SetStepObserver(observer StepObserver) {
	e.observer = observer
}

// SolverName returns the name of the backing solver.
func (e *Engine) SolverName() string {
	return e.solver.Name()
}

// engineState is the accumulated surrogate objective of a single run.
type engineState struct {
	curvature *mat.SymDense // A
	linear    []float64     // b
	current   []float64     // x, the decision for the next unobserved step
}

func newEngineState(n int, ridge float64) *engineState {
	curvature := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		curvature.SetSym(i, i, ridge)
	}
	return &engineState{
		curvature: curvature,
		linear:    make([]float64, n),
		current:   Uniform(n),
	}
}

// observe folds one vector of return relatives into the surrogate and returns
// the realized growth of the current decision.
func (s *engineState) observe(r []float64) (float64, error) {
	growth := floats.Dot(r, s.current)
	if !(growth > 0) || math.IsInf(growth, 0) {
		return 0, fmt.Errorf("%w: R·x = %g", ErrDegenerateGrowth, growth)
	}

	// A += r·rᵀ / g
	s.curvature.SymRankOne(s.curvature, 1/growth, mat.NewVecDense(len(r), r))

	// b += -r/g - r
	floats.AddScaled(s.linear, -1/growth, r)
	floats.Sub(s.linear, r)

	return growth, nil
}

// Weights runs the learner over relatives (T rows of `assets` columns) and returns
// T+1 allocation rows: row t is the decision made before observing step t and the
// last row is the allocation for the step after the observed horizon. With no
// relatives it returns a single uniform row.
//
// The run either completes or fails; a failing step is reported as *StepError.
func (e *Engine) Weights(ctx context.Context, assets int, relatives [][]float64, epsilon float64) ([][]float64, error) {
	if err := ValidateRelatives(assets, relatives); err != nil {
		return nil, err
	}
	if epsilon < 0 || math.IsNaN(epsilon) || math.IsInf(epsilon, 0) {
		return nil, fmt.Errorf("%w: epsilon must be finite and non-negative, got %g", ErrInvalidInput, epsilon)
	}

	if len(relatives) == 0 {
		return [][]float64{Uniform(assets)}, nil
	}

	start := time.Now()
	state := newEngineState(assets, e.ridge)
	weights := make([][]float64, 0, len(relatives)+1)

	for t, r := range relatives {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Step: t, Err: err}
		}

		decision := make([]float64, assets)
		copy(decision, state.current)
		weights = append(weights, decision)

		if _, err := state.observe(r); err != nil {
			return nil, &StepError{Step: t, Err: err}
		}

		solveStart := time.Now()
		next, err := e.solver.SolveSimplexQP(state.curvature, state.linear, epsilon)
		if err == nil {
			next, err = cleanSimplex(next)
		}
		if err != nil {
			e.log.Error().Err(err).Int("step", t).Str("solver", e.solver.Name()).Msg("Per-step solve failed")
			if !errors.Is(err, ErrSolverFailed) {
				err = fmt.Errorf("%w: %w", ErrSolverFailed, err)
			}
			return nil, &StepError{Step: t, Err: err}
		}
		if e.observer != nil {
			e.observer(e.solver.Name(), t, time.Since(solveStart).Seconds())
		}
		state.current = next
	}

	final := make([]float64, assets)
	copy(final, state.current)
	weights = append(weights, final)

	e.log.Debug().
		Int("steps", len(relatives)).
		Int("assets", assets).
		Float64("epsilon", epsilon).
		Dur("elapsed", time.Since(start)).
		Msg("Weights computed")

	return weights, nil
}

// ValidateRelatives checks that relatives form a T x assets table of finite,
// strictly positive values.
func ValidateRelatives(assets int, relatives [][]float64) error {
	if assets <= 0 {
		return fmt.Errorf("%w: asset count must be positive, got %d", ErrInvalidInput, assets)
	}
	for t, row := range relatives {
		if len(row) != assets {
			return fmt.Errorf("%w: row %d has %d entries, expected %d", ErrInvalidInput, t, len(row), assets)
		}
		for i, v := range row {
			if !(v > 0) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d asset %d has relative %g", ErrInvalidInput, t, i, v)
			}
		}
	}
	return nil
}
