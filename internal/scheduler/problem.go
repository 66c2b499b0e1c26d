package scheduler

import (
	"errors"
	"fmt"
)

// Problem is the constraint model for one generation run. It carries one
// subject-valued decision variable per (class, slot) and three constraint
// families: every slot holds exactly one subject, every (class, subject)
// pair hits its session quota exactly, and no teacher serves two classes in
// the same slot.
type Problem struct {
	Grid     Grid
	ClassIDs []string
	Loads    []SubjectLoad
	Teachers []Teacher
}

// ErrQuotaMismatch flags a malformed model whose session quotas cannot tile
// the weekly grid. Detected before solving; distinct from infeasibility.
var ErrQuotaMismatch = errors.New("subject sessions do not sum to the weekly slot count")

// NewProblem assembles the constraint model for the given classes and
// validates it. Quotas that do not sum to the grid size are a configuration
// error and are rejected here, never handed to the solver.
func NewProblem(plan *Plan, classIDs []string) (*Problem, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}
	if len(classIDs) == 0 {
		return nil, errors.New("no classes to schedule")
	}

	total := 0
	for _, load := range plan.Loads {
		if load.Sessions < 1 {
			return nil, fmt.Errorf("%w: subject %s has %d sessions", ErrQuotaMismatch, load.Subject.Name, load.Sessions)
		}
		total += load.Sessions
	}
	if total != plan.Grid.Size() {
		return nil, fmt.Errorf("%w: %d sessions for %d slots", ErrQuotaMismatch, total, plan.Grid.Size())
	}

	ids := make([]string, len(classIDs))
	copy(ids, classIDs)

	return &Problem{
		Grid:     plan.Grid,
		ClassIDs: ids,
		Loads:    plan.Loads,
		Teachers: plan.Teachers,
	}, nil
}

// loadIndex returns the position of a subject in the load table, or -1.
func (p *Problem) loadIndex(subjectID string) int {
	for i, load := range p.Loads {
		if load.Subject.ID == subjectID {
			return i
		}
	}
	return -1
}
