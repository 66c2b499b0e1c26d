package scheduler

import "fmt"

// BusySet records which teachers are taken per slot and by which class.
// Callers seed it with committed entries from classes outside the run so
// cross-class collision checks see one consistent view.
type BusySet map[Slot]map[string]string

// NewBusySet returns an empty busy set.
func NewBusySet() BusySet {
	return make(BusySet)
}

// Mark records a teacher as taken for the slot.
func (b BusySet) Mark(slot Slot, teacherID, classID string) {
	if b[slot] == nil {
		b[slot] = make(map[string]string)
	}
	b[slot][teacherID] = classID
}

// Taken reports whether the teacher is already committed in the slot.
func (b BusySet) Taken(slot Slot, teacherID string) bool {
	_, ok := b[slot][teacherID]
	return ok
}

// Placement is one bound cell of the final schedule.
type Placement struct {
	ClassID string
	Slot    Slot
	Subject Subject
	Teacher Teacher
}

// NoTeacherError reports a slot whose entire teacher pool is already
// committed elsewhere. The run is incomplete, never silently double-booked.
type NoTeacherError struct {
	ClassID string
	Slot    Slot
}

func (e *NoTeacherError) Error() string {
	return fmt.Sprintf("no available teacher for class %s in slot %s", e.ClassID, e.Slot)
}

// bindTeachers assigns a teacher to every (class, slot, subject) triple of
// the solved grids. Teachers rotate round-robin with an explicit per-class
// cursor seeded from the class index and the attempt number; a teacher
// already bound to the same slot in another class, or committed outside the
// run, is skipped. The input busy set is never mutated.
func bindTeachers(p *Problem, sol *Solution, busy BusySet, attempt int) ([]Placement, error) {
	pool := p.Teachers
	n := len(pool)

	cursors := make(map[string]int, len(p.ClassIDs))
	for i, classID := range p.ClassIDs {
		cursors[classID] = (i + attempt) % n
	}

	inRun := NewBusySet()
	placements := make([]Placement, 0, p.Grid.Size()*len(p.ClassIDs))

	for _, slot := range p.Grid.Slots() {
		for _, classID := range p.ClassIDs {
			subject := sol.Classes[classID][slot]

			picked := -1
			start := cursors[classID]
			for i := 0; i < n; i++ {
				idx := (start + i) % n
				teacher := pool[idx]
				if busy.Taken(slot, teacher.ID) || inRun.Taken(slot, teacher.ID) {
					continue
				}
				picked = idx
				break
			}
			if picked < 0 {
				return nil, &NoTeacherError{ClassID: classID, Slot: slot}
			}

			cursors[classID] = (picked + 1) % n
			inRun.Mark(slot, pool[picked].ID, classID)
			placements = append(placements, Placement{
				ClassID: classID,
				Slot:    slot,
				Subject: subject,
				Teacher: pool[picked],
			})
		}
	}

	return placements, nil
}
