package scheduler

import (
	"errors"
	"fmt"
	"sort"
)

// Subject is the catalog snapshot of a teachable subject.
type Subject struct {
	ID   string
	Name string
}

// Teacher is the catalog snapshot of an instructor eligible for assignment.
// Any teacher may take any subject; eligibility sets are not modelled.
type Teacher struct {
	ID   string
	Name string
}

// SubjectLoad pairs a subject with the exact number of weekly sessions it
// must occupy in every class grid.
type SubjectLoad struct {
	Subject  Subject
	Sessions int
}

// Plan is the solver-ready snapshot for one generation run: the grid, the
// per-subject session quotas, and the teacher pool.
type Plan struct {
	Grid     Grid
	Loads    []SubjectLoad
	Teachers []Teacher
}

// Catalog precondition failures. All are fatal to a run; there is no
// partial fallback.
var (
	ErrNoSubjects      = errors.New("no subjects to schedule")
	ErrNoTeachers      = errors.New("no teachers to schedule")
	ErrTooManySubjects = errors.New("more subjects than weekly slots")
)

// BuildPlan derives the weekly session quota for each subject. With S
// subjects and T weekly slots every subject gets T/S sessions and the first
// T%S subjects in name order get one extra, so the quotas always sum to T.
// A catalog with more subjects than slots is rejected outright since some
// subject would end up with zero sessions.
func BuildPlan(grid Grid, subjects []Subject, teachers []Teacher) (*Plan, error) {
	if len(subjects) == 0 {
		return nil, ErrNoSubjects
	}
	if len(teachers) == 0 {
		return nil, ErrNoTeachers
	}

	total := grid.Size()
	if len(subjects) > total {
		return nil, fmt.Errorf("%w: %d subjects for %d slots", ErrTooManySubjects, len(subjects), total)
	}

	ordered := make([]Subject, len(subjects))
	copy(ordered, subjects)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Name != ordered[j].Name {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].ID < ordered[j].ID
	})

	base := total / len(ordered)
	extra := total % len(ordered)

	loads := make([]SubjectLoad, len(ordered))
	for i, subject := range ordered {
		sessions := base
		if i < extra {
			sessions++
		}
		loads[i] = SubjectLoad{Subject: subject, Sessions: sessions}
	}

	pool := make([]Teacher, len(teachers))
	copy(pool, teachers)

	return &Plan{Grid: grid, Loads: loads, Teachers: pool}, nil
}
