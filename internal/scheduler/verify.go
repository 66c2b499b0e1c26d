package scheduler

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ErrScheduleInvalid wraps verification failures. A failure here means the
// engine produced an assignment violating its own constraints; such output
// must never reach persistence.
var ErrScheduleInvalid = errors.New("schedule violates constraints")

// verifySolution re-checks the subject phase before teachers are bound:
// every slot of every class is filled and every subject hits its session
// quota exactly.
func verifySolution(p *Problem, sol *Solution) error {
	slots := p.Grid.Slots()
	for _, classID := range p.ClassIDs {
		grid := sol.Classes[classID]
		if len(grid) != len(slots) {
			return fmt.Errorf("%w: class %s fills %d of %d slots", ErrScheduleInvalid, classID, len(grid), len(slots))
		}

		counts := make(map[string]int, len(p.Loads))
		for _, slot := range slots {
			subject, ok := grid[slot]
			if !ok {
				return fmt.Errorf("%w: class %s slot %s is empty", ErrScheduleInvalid, classID, slot)
			}
			counts[subject.ID]++
		}
		for _, load := range p.Loads {
			if counts[load.Subject.ID] != load.Sessions {
				return fmt.Errorf("%w: class %s subject %s occupies %d slots, want %d",
					ErrScheduleInvalid, classID, load.Subject.Name, counts[load.Subject.ID], load.Sessions)
			}
		}
	}
	return nil
}

// VerifySchedule re-checks a bound schedule against the full constraint
// set: slot totality, exact session quotas, and teacher non-collision both
// within the run and against the pre-committed busy set.
func VerifySchedule(p *Problem, placements []Placement, busy BusySet) error {
	byClass := lo.GroupBy(placements, func(pl Placement) string { return pl.ClassID })

	want := p.Grid.Size()
	for _, classID := range p.ClassIDs {
		rows := byClass[classID]
		if len(rows) != want {
			return fmt.Errorf("%w: class %s has %d of %d entries", ErrScheduleInvalid, classID, len(rows), want)
		}

		filled := make(map[Slot]bool, want)
		for _, row := range rows {
			if filled[row.Slot] {
				return fmt.Errorf("%w: class %s slot %s filled twice", ErrScheduleInvalid, classID, row.Slot)
			}
			filled[row.Slot] = true
		}

		counts := lo.CountValuesBy(rows, func(pl Placement) string { return pl.Subject.ID })
		for _, load := range p.Loads {
			if counts[load.Subject.ID] != load.Sessions {
				return fmt.Errorf("%w: class %s subject %s occupies %d slots, want %d",
					ErrScheduleInvalid, classID, load.Subject.Name, counts[load.Subject.ID], load.Sessions)
			}
		}
	}

	taken := NewBusySet()
	for _, pl := range placements {
		if busy.Taken(pl.Slot, pl.Teacher.ID) {
			return fmt.Errorf("%w: teacher %s is committed outside the run in slot %s",
				ErrScheduleInvalid, pl.Teacher.Name, pl.Slot)
		}
		if taken.Taken(pl.Slot, pl.Teacher.ID) {
			return fmt.Errorf("%w: teacher %s double-booked in slot %s",
				ErrScheduleInvalid, pl.Teacher.Name, pl.Slot)
		}
		taken.Mark(pl.Slot, pl.Teacher.ID, pl.ClassID)
	}

	return nil
}
