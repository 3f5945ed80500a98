package optimization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when return relatives are missing, ragged, non-finite or non-positive.
	ErrInvalidInput = errors.New("invalid return relatives")
	// ErrDegenerateGrowth is returned when a step's realized growth R[t]·x_t is not strictly positive.
	ErrDegenerateGrowth = errors.New("non-positive realized growth")
	// ErrSolverFailed is returned when the per-step quadratic program has no usable solution.
	ErrSolverFailed = errors.New("quadratic program solve failed")
	// ErrSolverNotConverged is returned when a solver exhausts its iteration budget.
	ErrSolverNotConverged = errors.New("solver did not converge")
)

// StepError reports the step at which a run was aborted.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
