package scheduler

import (
	"context"
	"errors"
)

// Solution assigns a subject to every slot of every class. Teacher identity
// is bound in a separate pass; see bindTeachers.
type Solution struct {
	Classes map[string]map[Slot]Subject
}

// Search outcomes. Infeasibility is a legitimate result and is reported
// only after the search space is exhausted; a blown budget is reported
// separately so callers never mistake a timeout for a proof.
var (
	ErrInfeasible     = errors.New("no assignment satisfies the constraints")
	ErrBudgetExceeded = errors.New("solve budget exceeded")
)

// budgetCheckInterval controls how often the search polls its context.
const budgetCheckInterval = 1024

type solveStats struct {
	Nodes      int
	Backtracks int
}

// solve fills every class grid by complete backtracking search. The
// candidate order for each slot rotates with the class index and the
// attempt number, so re-solves explore different placements first while
// the reachable space stays identical.
func solve(ctx context.Context, p *Problem, attempt int) (*Solution, *solveStats, error) {
	stats := &solveStats{}
	classes := make(map[string]map[Slot]Subject, len(p.ClassIDs))
	for i, classID := range p.ClassIDs {
		offset := (i + attempt) % len(p.Loads)
		grid, err := solveClass(ctx, p.Grid, p.Loads, offset, stats)
		if err != nil {
			return nil, stats, err
		}
		classes[classID] = grid
	}
	return &Solution{Classes: classes}, stats, nil
}

type classSearch struct {
	ctx       context.Context
	slots     []Slot
	loads     []SubjectLoad
	remaining []int
	picks     []int
	offset    int
	stats     *solveStats
}

func solveClass(ctx context.Context, grid Grid, loads []SubjectLoad, offset int, stats *solveStats) (map[Slot]Subject, error) {
	search := &classSearch{
		ctx:       ctx,
		slots:     grid.Slots(),
		loads:     loads,
		remaining: make([]int, len(loads)),
		picks:     make([]int, grid.Size()),
		offset:    offset,
		stats:     stats,
	}
	for i, load := range loads {
		search.remaining[i] = load.Sessions
	}

	if err := search.descend(0); err != nil {
		return nil, err
	}

	result := make(map[Slot]Subject, len(search.slots))
	for pos, slot := range search.slots {
		result[slot] = search.loads[search.picks[pos]].Subject
	}
	return result, nil
}

// descend tries every subject with sessions left for the slot at pos, in
// rotated order, and recurses. ErrInfeasible surfaces only once the whole
// subtree is exhausted, which keeps the search complete.
func (cs *classSearch) descend(pos int) error {
	if pos == len(cs.slots) {
		for _, left := range cs.remaining {
			if left != 0 {
				return ErrInfeasible
			}
		}
		return nil
	}

	if cs.stats.Nodes%budgetCheckInterval == 0 {
		select {
		case <-cs.ctx.Done():
			return ErrBudgetExceeded
		default:
		}
	}

	n := len(cs.loads)
	for i := 0; i < n; i++ {
		idx := (pos + cs.offset + i) % n
		if cs.remaining[idx] == 0 {
			continue
		}
		cs.stats.Nodes++
		cs.remaining[idx]--
		cs.picks[pos] = idx

		err := cs.descend(pos + 1)
		if err == nil {
			return nil
		}
		cs.remaining[idx]++
		cs.stats.Backtracks++
		if errors.Is(err, ErrBudgetExceeded) {
			return err
		}
	}
	return ErrInfeasible
}
