package scheduler

import "fmt"

// Day is a teaching weekday. The week runs Monday through Friday and days
// are identified by their ordinal, Monday being zero.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
)

// DaysPerWeek is the number of teaching days in a week.
const DaysPerWeek = 5

// DefaultPeriodsPerDay is the grid depth used when none is configured.
const DefaultPeriodsPerDay = 6

var dayNames = [...]string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}

func (d Day) String() string {
	if d < Monday || d > Friday {
		return fmt.Sprintf("DAY(%d)", int(d))
	}
	return dayNames[d]
}

// Days returns the teaching days in calendar order.
func Days() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// ParseDay maps a stored day name such as "MONDAY" back to its Day.
func ParseDay(name string) (Day, bool) {
	for i, n := range dayNames {
		if n == name {
			return Day(i), true
		}
	}
	return 0, false
}

// Slot is one (day, period) cell of a weekly grid. Periods are 1-based.
type Slot struct {
	Day    Day
	Period int
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%d", s.Day, s.Period)
}

// Grid describes the weekly slot layout shared by every class.
type Grid struct {
	PeriodsPerDay int
}

// NewGrid builds a grid with the given number of periods per day.
func NewGrid(periodsPerDay int) (Grid, error) {
	if periodsPerDay < 1 {
		return Grid{}, fmt.Errorf("periods per day must be positive, got %d", periodsPerDay)
	}
	return Grid{PeriodsPerDay: periodsPerDay}, nil
}

// Size is the number of weekly slots per class.
func (g Grid) Size() int {
	return DaysPerWeek * g.PeriodsPerDay
}

// Periods lists the period numbers of a single day in order.
func (g Grid) Periods() []int {
	periods := make([]int, g.PeriodsPerDay)
	for i := range periods {
		periods[i] = i + 1
	}
	return periods
}

// Slots enumerates every cell day-major: all of Monday, then Tuesday, and so
// on. Generation and binding both rely on this fixed order.
func (g Grid) Slots() []Slot {
	slots := make([]Slot, 0, g.Size())
	for _, day := range Days() {
		for period := 1; period <= g.PeriodsPerDay; period++ {
			slots = append(slots, Slot{Day: day, Period: period})
		}
	}
	return slots
}
