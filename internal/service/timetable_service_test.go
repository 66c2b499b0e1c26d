package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

func TestTimetableServiceGenerateForClassWritesFullGrid(t *testing.T) {
	entryRepo := &fakeEntryRepo{}
	runRepo := newFakeRunRepo()
	cacheRepo := &stubCacheRepo{}
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(5),
		entries:  entryRepo,
		runs:     runRepo,
		cache:    NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true),
	})

	run, err := svc.GenerateForClass(context.Background(), "c1", "admin-1")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.RunScopeClass, run.Scope)
	assert.Equal(t, 1, run.ClassesTotal)
	assert.Equal(t, 30, run.EntriesWritten)
	assert.NotNil(t, run.FinishedAt)

	require.Len(t, entryRepo.replacedClasses, 1)
	assert.Equal(t, []string{"c1"}, entryRepo.replacedClasses[0])
	require.Len(t, entryRepo.replacedEntries, 30)

	counts := map[string]int{}
	for _, entry := range entryRepo.replacedEntries {
		assert.Equal(t, "c1", entry.ClassID)
		counts[entry.SubjectID]++
	}
	assert.Equal(t, 8, counts["s-bio"])
	assert.Equal(t, 8, counts["s-che"])
	assert.Equal(t, 7, counts["s-eng"])
	assert.Equal(t, 7, counts["s-his"])

	stored := runRepo.mustGet(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Nil(t, stored.ErrorCode)

	assert.Equal(t, []string{"timetable:*"}, cacheRepo.deleted, "stale grids must be dropped after a commit")
}

func TestTimetableServiceGenerateForClassRespectsCommittedBookings(t *testing.T) {
	entryRepo := &fakeEntryRepo{
		busy: []models.TeacherSlot{{TeacherID: "t1", ClassID: "c2", DayOfWeek: "MONDAY", Period: 1}},
	}
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: []models.Subject{{ID: "s-mat", Code: "MAT", Name: "Mathematics"}},
		teachers: teacherPoolFixture(2),
		entries:  entryRepo,
		runs:     newFakeRunRepo(),
	})

	run, err := svc.GenerateForClass(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	for _, entry := range entryRepo.replacedEntries {
		if entry.DayOfWeek == "MONDAY" && entry.Period == 1 {
			assert.NotEqual(t, "t1", entry.TeacherID, "booked teacher reused in an occupied slot")
		}
	}
}

func TestTimetableServiceGenerateForClassFailsWithoutSubjects(t *testing.T) {
	entryRepo := &fakeEntryRepo{}
	runRepo := newFakeRunRepo()
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: nil,
		teachers: teacherPoolFixture(2),
		entries:  entryRepo,
		runs:     runRepo,
	})

	_, err := svc.GenerateForClass(context.Background(), "c1", "")
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNoSubjects.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrNoSubjects.Status, appErr.Status)

	assert.Empty(t, entryRepo.replacedClasses, "failed run must not touch the committed timetable")
	stored := runRepo.mustGetLatest(t)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, appErrors.ErrNoSubjects.Code, *stored.ErrorCode)
}

func TestTimetableServiceGenerateForClassUnknownClass(t *testing.T) {
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(2),
		entries:  &fakeEntryRepo{},
		runs:     newFakeRunRepo(),
	})

	_, err := svc.GenerateForClass(context.Background(), "missing", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestTimetableServiceGenerateSchoolRequiresQueue(t *testing.T) {
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(2),
		entries:  &fakeEntryRepo{},
		runs:     newFakeRunRepo(),
	})

	_, err := svc.GenerateSchool(context.Background(), "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestTimetableServiceGenerateSchoolEnqueuesPendingRun(t *testing.T) {
	runRepo := newFakeRunRepo()
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(2),
		entries:  &fakeEntryRepo{},
		runs:     runRepo,
	})

	received := make(chan jobs.Job, 1)
	queue := jobs.NewQueue("timetable-test", func(_ context.Context, job jobs.Job) error {
		received <- job
		return nil
	}, jobs.QueueConfig{Workers: 1, Logger: zap.NewNop()})
	queue.Start(context.Background())
	defer queue.Stop()
	svc.AttachQueue(queue)

	run, err := svc.GenerateSchool(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, models.RunScopeSchool, run.Scope)

	select {
	case job := <-received:
		assert.Equal(t, SchoolRunJobType, job.Type)
		assert.Equal(t, run.ID, job.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("school run was never enqueued")
	}
}

func TestTimetableServiceProcessRunJobCompletesSchoolRun(t *testing.T) {
	entryRepo := &fakeEntryRepo{}
	runRepo := newFakeRunRepo()
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1"), classFixture("c2", "X IPA 2")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(5),
		entries:  entryRepo,
		runs:     runRepo,
	})

	run := &models.GenerationRun{Scope: models.RunScopeSchool}
	require.NoError(t, runRepo.Create(context.Background(), run))

	err := svc.ProcessRunJob(context.Background(), jobs.Job{ID: run.ID, Type: SchoolRunJobType, Payload: run.ID})
	require.NoError(t, err)

	stored := runRepo.mustGet(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.ClassesTotal)
	assert.Equal(t, 60, stored.EntriesWritten)

	require.Len(t, entryRepo.replacedClasses, 1)
	assert.Equal(t, []string{"c1", "c2"}, entryRepo.replacedClasses[0])
	require.Len(t, entryRepo.replacedEntries, 60)
}

func TestTimetableServiceProcessRunJobRecordsInfeasibleOutcome(t *testing.T) {
	entryRepo := &fakeEntryRepo{}
	runRepo := newFakeRunRepo()
	// Two classes sharing a single teacher can never satisfy slot totality.
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1"), classFixture("c2", "X IPA 2")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(1),
		entries:  entryRepo,
		runs:     runRepo,
	})

	run := &models.GenerationRun{Scope: models.RunScopeSchool}
	require.NoError(t, runRepo.Create(context.Background(), run))

	err := svc.ProcessRunJob(context.Background(), jobs.Job{ID: run.ID, Type: SchoolRunJobType, Payload: run.ID})
	require.Error(t, err)

	stored := runRepo.mustGet(t, run.ID)
	assert.Equal(t, models.RunStatusIncomplete, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, appErrors.ErrTimetableInfeasible.Code, *stored.ErrorCode)
	assert.Empty(t, entryRepo.replacedClasses)
}

func TestTimetableServicePlanPreview(t *testing.T) {
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1"), classFixture("c2", "X IPA 2")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(3),
		entries:  &fakeEntryRepo{},
		runs:     newFakeRunRepo(),
	})

	plan, err := svc.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, plan.PeriodsPerDay)
	assert.Equal(t, 30, plan.SlotsPerClass)
	assert.Equal(t, 2, plan.ClassCount)
	assert.Equal(t, 3, plan.TeacherCount)
	assert.Equal(t, []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}, plan.Days)

	require.Len(t, plan.Subjects, 4)
	assert.Equal(t, "Biology", plan.Subjects[0].Name)
	assert.Equal(t, 8, plan.Subjects[0].WeeklySessions)
	assert.Equal(t, "History", plan.Subjects[3].Name)
	assert.Equal(t, 7, plan.Subjects[3].WeeklySessions)

	total := 0
	for _, subject := range plan.Subjects {
		total += subject.WeeklySessions
	}
	assert.Equal(t, plan.SlotsPerClass, total)
}

func TestTimetableServiceClassGridCacheAside(t *testing.T) {
	entryRepo := &fakeEntryRepo{
		byClass: []models.TimetableSlot{
			{ClassID: "c1", ClassName: "X IPA 1", DayOfWeek: "TUESDAY", Period: 2, SubjectID: "s-bio", SubjectName: "Biology", TeacherID: "t1", TeacherName: "Teacher 1"},
			{ClassID: "c1", ClassName: "X IPA 1", DayOfWeek: "MONDAY", Period: 1, SubjectID: "s-che", SubjectName: "Chemistry", TeacherID: "t2", TeacherName: "Teacher 2"},
		},
	}
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(2),
		entries:  entryRepo,
		runs:     newFakeRunRepo(),
		cache:    cacheSvc,
	})

	grid, hit, err := svc.ClassGrid(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "X IPA 1", grid.ClassName)
	require.Len(t, grid.Days, 5)
	assert.Equal(t, "MONDAY", grid.Days[0].Day)
	require.Len(t, grid.Days[0].Periods, 1)
	assert.Equal(t, "Chemistry", grid.Days[0].Periods[0].SubjectName)
	require.Len(t, grid.Days[1].Periods, 1)
	assert.Equal(t, "Biology", grid.Days[1].Periods[0].SubjectName)
	assert.Empty(t, grid.Days[4].Periods)

	again, hit, err := svc.ClassGrid(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, grid.ClassName, again.ClassName)
	assert.Equal(t, 1, entryRepo.listByClassCalls, "cache hit must not reach the database")
}

func TestTimetableServiceTeacherGridListsLessons(t *testing.T) {
	entryRepo := &fakeEntryRepo{
		byTeacher: []models.TimetableSlot{
			{ClassID: "c2", ClassName: "X IPA 2", DayOfWeek: "MONDAY", Period: 3, SubjectID: "s-bio", SubjectName: "Biology", TeacherID: "t1", TeacherName: "Teacher 1"},
			{ClassID: "c1", ClassName: "X IPA 1", DayOfWeek: "MONDAY", Period: 1, SubjectID: "s-bio", SubjectName: "Biology", TeacherID: "t1", TeacherName: "Teacher 1"},
		},
	}
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  []models.Class{classFixture("c1", "X IPA 1")},
		subjects: subjectCatalogFixture(),
		teachers: teacherPoolFixture(2),
		entries:  entryRepo,
		runs:     newFakeRunRepo(),
	})

	view, hit, err := svc.TeacherGrid(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Teacher 1", view.TeacherName)
	require.Len(t, view.Days, 5)
	require.Len(t, view.Days[0].Lessons, 2)
	assert.Equal(t, 1, view.Days[0].Lessons[0].Period)
	assert.Equal(t, "X IPA 1", view.Days[0].Lessons[0].ClassName)
	assert.Equal(t, 3, view.Days[0].Lessons[1].Period)
}

func TestTimetableServiceGetRunNotFound(t *testing.T) {
	svc := newTimetableServiceFixture(t, timetableFixtureDeps{
		classes:  nil,
		subjects: nil,
		teachers: nil,
		entries:  &fakeEntryRepo{},
		runs:     newFakeRunRepo(),
	})

	_, err := svc.GetRun(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestClassifyEngineErrorTaxonomy(t *testing.T) {
	status, appErr := classifyEngineError(scheduler.ErrNoSubjects)
	assert.Equal(t, models.RunStatusFailed, status)
	assert.Equal(t, appErrors.ErrNoSubjects.Code, appErr.Code)

	status, appErr = classifyEngineError(scheduler.ErrQuotaMismatch)
	assert.Equal(t, models.RunStatusFailed, status)
	assert.Equal(t, appErrors.ErrQuotaConfig.Code, appErr.Code)

	status, appErr = classifyEngineError(fmt.Errorf("wrapped: %w", scheduler.ErrInfeasible))
	assert.Equal(t, models.RunStatusIncomplete, status)
	assert.Equal(t, appErrors.ErrTimetableInfeasible.Code, appErr.Code)

	status, appErr = classifyEngineError(&scheduler.NoTeacherError{ClassID: "c1", Slot: scheduler.Slot{Day: scheduler.Monday, Period: 1}})
	assert.Equal(t, models.RunStatusIncomplete, status)
	assert.Equal(t, appErrors.ErrNoAvailableTeacher.Code, appErr.Code)

	status, appErr = classifyEngineError(scheduler.ErrBudgetExceeded)
	assert.Equal(t, models.RunStatusIncomplete, status)
	assert.Equal(t, appErrors.ErrSolveBudget.Code, appErr.Code)

	status, appErr = classifyEngineError(errors.New("connection reset"))
	assert.Equal(t, models.RunStatusFailed, status)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

type timetableFixtureDeps struct {
	classes  []models.Class
	subjects []models.Subject
	teachers []models.Teacher
	entries  *fakeEntryRepo
	runs     *fakeRunRepo
	cache    *CacheService
}

func newTimetableServiceFixture(t *testing.T, deps timetableFixtureDeps) *TimetableService {
	t.Helper()
	return NewTimetableService(TimetableServiceParams{
		Classes:  &fakeClassRepo{classes: deps.classes},
		Subjects: &fakeSubjectRepo{subjects: deps.subjects},
		Teachers: &fakeTeacherRepo{teachers: deps.teachers},
		Entries:  deps.entries,
		Runs:     deps.runs,
		Cache:    deps.cache,
		Config: config.TimetableConfig{
			PeriodsPerDay: 6,
			SolveTimeout:  5 * time.Second,
			MaxAttempts:   3,
			GridCacheTTL:  time.Minute,
		},
		Logger: zap.NewNop(),
	})
}

func classFixture(id, name string) models.Class {
	return models.Class{ID: id, Name: name, Grade: "X", Track: "IPA"}
}

func subjectCatalogFixture() []models.Subject {
	return []models.Subject{
		{ID: "s-his", Code: "HIS", Name: "History"},
		{ID: "s-bio", Code: "BIO", Name: "Biology"},
		{ID: "s-eng", Code: "ENG", Name: "English"},
		{ID: "s-che", Code: "CHE", Name: "Chemistry"},
	}
}

func teacherPoolFixture(count int) []models.Teacher {
	teachers := make([]models.Teacher, 0, count)
	for i := 1; i <= count; i++ {
		teachers = append(teachers, models.Teacher{
			ID:       fmt.Sprintf("t%d", i),
			FullName: fmt.Sprintf("Teacher %d", i),
			Active:   true,
		})
	}
	return teachers
}

type fakeClassRepo struct {
	classes []models.Class
}

func (f *fakeClassRepo) ListAll(context.Context) ([]models.Class, error) {
	return f.classes, nil
}

func (f *fakeClassRepo) FindByID(_ context.Context, id string) (*models.Class, error) {
	for i := range f.classes {
		if f.classes[i].ID == id {
			class := f.classes[i]
			return &class, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeSubjectRepo struct {
	subjects []models.Subject
}

func (f *fakeSubjectRepo) ListAll(context.Context) ([]models.Subject, error) {
	return f.subjects, nil
}

type fakeTeacherRepo struct {
	teachers []models.Teacher
}

func (f *fakeTeacherRepo) ListActive(context.Context) ([]models.Teacher, error) {
	return f.teachers, nil
}

func (f *fakeTeacherRepo) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	for i := range f.teachers {
		if f.teachers[i].ID == id {
			teacher := f.teachers[i]
			return &teacher, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeEntryRepo struct {
	busy             []models.TeacherSlot
	byClass          []models.TimetableSlot
	byTeacher        []models.TimetableSlot
	replaceErr       error
	replacedClasses  [][]string
	replacedEntries  []models.TimetableEntry
	listByClassCalls int
}

func (f *fakeEntryRepo) ReplaceForClasses(_ context.Context, classIDs []string, entries []models.TimetableEntry) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replacedClasses = append(f.replacedClasses, classIDs)
	f.replacedEntries = entries
	return nil
}

func (f *fakeEntryRepo) ListSlotsByClass(context.Context, string) ([]models.TimetableSlot, error) {
	f.listByClassCalls++
	return f.byClass, nil
}

func (f *fakeEntryRepo) ListSlotsByTeacher(context.Context, string) ([]models.TimetableSlot, error) {
	return f.byTeacher, nil
}

func (f *fakeEntryRepo) ListTeacherSlots(context.Context, []string) ([]models.TeacherSlot, error) {
	return f.busy, nil
}

type fakeRunRepo struct {
	runs    map[string]*models.GenerationRun
	created int
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*models.GenerationRun)}
}

func (f *fakeRunRepo) Create(_ context.Context, run *models.GenerationRun) error {
	f.created++
	if run.ID == "" {
		run.ID = fmt.Sprintf("run-%d", f.created)
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	run.CreatedAt = time.Now().UTC()
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

func (f *fakeRunRepo) MarkRunning(_ context.Context, id string) error {
	run, ok := f.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now
	return nil
}

func (f *fakeRunRepo) Finish(_ context.Context, id string, status models.RunStatus, errorCode, errorMessage *string, classesTotal, entriesWritten int) error {
	run, ok := f.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	run.Status = status
	run.ErrorCode = errorCode
	run.ErrorMessage = errorMessage
	run.ClassesTotal = classesTotal
	run.EntriesWritten = entriesWritten
	run.FinishedAt = &now
	return nil
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (*models.GenerationRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRunRepo) mustGet(t *testing.T, id string) *models.GenerationRun {
	t.Helper()
	run, ok := f.runs[id]
	require.True(t, ok, "run %s not stored", id)
	return run
}

func (f *fakeRunRepo) mustGetLatest(t *testing.T) *models.GenerationRun {
	t.Helper()
	require.NotEmpty(t, f.runs)
	var latest *models.GenerationRun
	for _, run := range f.runs {
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	return latest
}
