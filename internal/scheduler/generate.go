package scheduler

import (
	"context"
	"fmt"
)

// Options tunes a generation run.
type Options struct {
	// MaxAttempts bounds how many solve+bind cycles run before a teacher
	// binding failure is surfaced. Values below one mean a single attempt.
	MaxAttempts int
}

// Result carries the bound schedule plus solve diagnostics.
type Result struct {
	Placements []Placement
	Attempts   int
	Nodes      int
	Backtracks int
}

// Generate runs the full cycle for a problem: subject placement, defensive
// re-validation, teacher binding, and final verification. When binding
// exhausts the teacher pool for a slot the cycle restarts with rotated
// offsets, up to MaxAttempts, since a different placement can bind cleanly.
// Solver infeasibility and budget expiry are terminal; retrying cannot
// change either.
func Generate(ctx context.Context, p *Problem, busy BusySet, opts Options) (*Result, error) {
	if len(p.Teachers) == 0 {
		return nil, ErrNoTeachers
	}
	// Scheduling more classes together than there are teachers is provably
	// infeasible: every slot would need that many distinct teachers.
	if len(p.ClassIDs) > len(p.Teachers) {
		return nil, fmt.Errorf("%w: %d classes share %d teachers", ErrInfeasible, len(p.ClassIDs), len(p.Teachers))
	}

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	result := &Result{}
	var bindErr error

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrBudgetExceeded, ctx.Err())
		default:
		}

		sol, stats, err := solve(ctx, p, attempt)
		result.Nodes += stats.Nodes
		result.Backtracks += stats.Backtracks
		result.Attempts = attempt + 1
		if err != nil {
			return nil, err
		}
		if err := verifySolution(p, sol); err != nil {
			return nil, err
		}

		placements, err := bindTeachers(p, sol, busy, attempt)
		if err != nil {
			bindErr = err
			continue
		}
		if err := VerifySchedule(p, placements, busy); err != nil {
			return nil, err
		}

		result.Placements = placements
		return result, nil
	}

	return nil, bindErr
}
