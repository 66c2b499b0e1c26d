package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlanEvenSplit(t *testing.T) {
	plan, err := BuildPlan(gridOf(t, 6), subjectFixtures("Biology", "Chemistry", "English"), teacherFixtures(2))
	require.NoError(t, err)

	require.Len(t, plan.Loads, 3)
	for _, load := range plan.Loads {
		assert.Equal(t, 10, load.Sessions)
	}
}

func TestBuildPlanRemainderGoesToFirstSubjectsByName(t *testing.T) {
	// Deliberately unsorted input; quotas follow name order.
	plan, err := BuildPlan(gridOf(t, 6), subjectFixtures("History", "Biology", "English", "Chemistry"), teacherFixtures(2))
	require.NoError(t, err)

	require.Len(t, plan.Loads, 4)
	assert.Equal(t, "Biology", plan.Loads[0].Subject.Name)
	assert.Equal(t, 8, plan.Loads[0].Sessions)
	assert.Equal(t, "Chemistry", plan.Loads[1].Subject.Name)
	assert.Equal(t, 8, plan.Loads[1].Sessions)
	assert.Equal(t, "English", plan.Loads[2].Subject.Name)
	assert.Equal(t, 7, plan.Loads[2].Sessions)
	assert.Equal(t, "History", plan.Loads[3].Subject.Name)
	assert.Equal(t, 7, plan.Loads[3].Sessions)
}

func TestBuildPlanQuotasAlwaysSumToGridSize(t *testing.T) {
	grid := gridOf(t, 6)
	for count := 1; count <= grid.Size(); count++ {
		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("Subject %02d", i+1)
		}
		plan, err := BuildPlan(grid, subjectFixtures(names...), teacherFixtures(1))
		require.NoError(t, err, "count %d", count)

		total := 0
		for _, load := range plan.Loads {
			total += load.Sessions
		}
		assert.Equal(t, grid.Size(), total, "count %d", count)
	}
}

func TestBuildPlanOneSessionEachWhenSubjectsMatchSlots(t *testing.T) {
	grid := gridOf(t, 2)
	names := make([]string, grid.Size())
	for i := range names {
		names[i] = fmt.Sprintf("Subject %02d", i+1)
	}

	plan, err := BuildPlan(grid, subjectFixtures(names...), teacherFixtures(1))
	require.NoError(t, err)

	for _, load := range plan.Loads {
		assert.Equal(t, 1, load.Sessions)
	}
}

func TestBuildPlanRejectsMoreSubjectsThanSlots(t *testing.T) {
	grid := gridOf(t, 1)
	names := make([]string, grid.Size()+1)
	for i := range names {
		names[i] = fmt.Sprintf("Subject %02d", i+1)
	}

	_, err := BuildPlan(grid, subjectFixtures(names...), teacherFixtures(1))
	require.ErrorIs(t, err, ErrTooManySubjects)
}

func TestBuildPlanRejectsEmptyCatalog(t *testing.T) {
	_, err := BuildPlan(gridOf(t, 6), nil, teacherFixtures(1))
	require.ErrorIs(t, err, ErrNoSubjects)

	_, err = BuildPlan(gridOf(t, 6), subjectFixtures("Biology"), nil)
	require.ErrorIs(t, err, ErrNoTeachers)
}

func TestBuildPlanDoesNotMutateInput(t *testing.T) {
	subjects := subjectFixtures("History", "Biology")
	_, err := BuildPlan(gridOf(t, 6), subjects, teacherFixtures(1))
	require.NoError(t, err)

	assert.Equal(t, "History", subjects[0].Name)
	assert.Equal(t, "Biology", subjects[1].Name)
}

func TestNewProblemRejectsQuotaMismatch(t *testing.T) {
	plan := &Plan{
		Grid: gridOf(t, 6),
		Loads: []SubjectLoad{
			{Subject: Subject{ID: "subject-01", Name: "Biology"}, Sessions: 10},
			{Subject: Subject{ID: "subject-02", Name: "Chemistry"}, Sessions: 10},
		},
		Teachers: teacherFixtures(1),
	}

	_, err := NewProblem(plan, []string{"class-1"})
	require.ErrorIs(t, err, ErrQuotaMismatch)
}

func TestNewProblemRequiresClasses(t *testing.T) {
	plan, err := BuildPlan(gridOf(t, 6), subjectFixtures("Biology"), teacherFixtures(1))
	require.NoError(t, err)

	_, err = NewProblem(plan, nil)
	require.Error(t, err)
}
