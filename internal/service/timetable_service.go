package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// SchoolRunJobType labels whole-school generation jobs on the queue.
const SchoolRunJobType = "timetable.generate_school"

type timetableClassRepository interface {
	ListAll(ctx context.Context) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type timetableSubjectRepository interface {
	ListAll(ctx context.Context) ([]models.Subject, error)
}

type timetableTeacherRepository interface {
	ListActive(ctx context.Context) ([]models.Teacher, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type timetableEntryRepository interface {
	ReplaceForClasses(ctx context.Context, classIDs []string, entries []models.TimetableEntry) error
	ListSlotsByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error)
	ListSlotsByTeacher(ctx context.Context, teacherID string) ([]models.TimetableSlot, error)
	ListTeacherSlots(ctx context.Context, excludeClassIDs []string) ([]models.TeacherSlot, error)
}

type generationRunRepository interface {
	Create(ctx context.Context, run *models.GenerationRun) error
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status models.RunStatus, errorCode, errorMessage *string, classesTotal, entriesWritten int) error
	GetByID(ctx context.Context, id string) (*models.GenerationRun, error)
}

// TimetableService owns timetable generation and the committed grid views.
type TimetableService struct {
	classes  timetableClassRepository
	subjects timetableSubjectRepository
	teachers timetableTeacherRepository
	entries  timetableEntryRepository
	runs     generationRunRepository
	cache    *CacheService
	metrics  *MetricsService
	queue    *jobs.Queue
	cfg      config.TimetableConfig
	logger   *zap.Logger

	// genMu serializes generation runs. Every run validates against the
	// committed bookings of classes outside its scope, so two interleaved
	// runs could each pass validation yet collide once both commit.
	genMu sync.Mutex
}

// TimetableServiceParams groups constructor dependencies.
type TimetableServiceParams struct {
	Classes  timetableClassRepository
	Subjects timetableSubjectRepository
	Teachers timetableTeacherRepository
	Entries  timetableEntryRepository
	Runs     generationRunRepository
	Cache    *CacheService
	Metrics  *MetricsService
	Config   config.TimetableConfig
	Logger   *zap.Logger
}

// NewTimetableService constructs a TimetableService with sane defaults.
func NewTimetableService(params TimetableServiceParams) *TimetableService {
	cfg := params.Config
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = scheduler.DefaultPeriodsPerDay
	}
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		classes:  params.Classes,
		subjects: params.Subjects,
		teachers: params.Teachers,
		entries:  params.Entries,
		runs:     params.Runs,
		cache:    params.Cache,
		metrics:  params.Metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// AttachQueue wires the background queue used for whole-school runs. The
// queue's handler must be ProcessRunJob.
func (s *TimetableService) AttachQueue(q *jobs.Queue) {
	s.queue = q
}

// Plan previews the generation plan for the current catalog: the per-subject
// weekly quotas plus pool sizes. Nothing is written.
func (s *TimetableService) Plan(ctx context.Context) (*dto.PlanResponse, error) {
	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	teachers, err := s.teachers.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	grid, err := scheduler.NewGrid(s.cfg.PeriodsPerDay)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrQuotaConfig.Code, appErrors.ErrQuotaConfig.Status, "invalid grid configuration")
	}

	plan, err := scheduler.BuildPlan(grid, engineSubjects(subjects), engineTeachers(teachers))
	if err != nil {
		_, appErr := classifyEngineError(err)
		return nil, appErr
	}

	codes := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		codes[subject.ID] = subject.Code
	}

	resp := &dto.PlanResponse{
		PeriodsPerDay: grid.PeriodsPerDay,
		SlotsPerClass: grid.Size(),
		ClassCount:    len(classes),
		TeacherCount:  len(teachers),
	}
	for _, day := range scheduler.Days() {
		resp.Days = append(resp.Days, day.String())
	}
	for _, load := range plan.Loads {
		resp.Subjects = append(resp.Subjects, dto.PlanSubject{
			SubjectID:      load.Subject.ID,
			Code:           codes[load.Subject.ID],
			Name:           load.Subject.Name,
			WeeklySessions: load.Sessions,
		})
	}
	return resp, nil
}

// GenerateForClass regenerates the timetable of a single class synchronously
// and returns the finished run record.
func (s *TimetableService) GenerateForClass(ctx context.Context, classID, requestedBy string) (*models.GenerationRun, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	run := &models.GenerationRun{
		Scope:        models.RunScopeClass,
		ClassID:      &class.ID,
		ClassesTotal: 1,
		RequestedBy:  optional(requestedBy),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation run")
	}

	if err := s.executeRun(ctx, run, []models.Class{*class}); err != nil {
		return nil, err
	}
	return run, nil
}

// GenerateSchool creates a whole-school run and hands it to the background
// queue. The returned run is still PENDING.
func (s *TimetableService) GenerateSchool(ctx context.Context, requestedBy string) (*models.GenerationRun, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "background queue unavailable")
	}

	run := &models.GenerationRun{
		Scope:       models.RunScopeSchool,
		RequestedBy: optional(requestedBy),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation run")
	}

	job := jobs.Job{ID: run.ID, Type: SchoolRunJobType, Payload: run.ID}
	if err := s.queue.Enqueue(job); err != nil {
		s.finishRun(run, models.RunStatusFailed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run"), 0, 0)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
	}
	return run, nil
}

// ProcessRunJob is the queue handler executing whole-school runs.
func (s *TimetableService) ProcessRunJob(ctx context.Context, job jobs.Job) error {
	runID, ok := job.Payload.(string)
	if !ok || runID == "" {
		return fmt.Errorf("run job %s has no run id", job.ID)
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load generation run %s: %w", runID, err)
	}

	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		s.finishRun(run, models.RunStatusFailed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes"), 0, 0)
		return fmt.Errorf("load classes for run %s: %w", runID, err)
	}

	if err := s.executeRun(ctx, run, classes); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	s.logger.Info("school timetable generated",
		zap.String("run_id", run.ID),
		zap.Int("classes", run.ClassesTotal),
		zap.Int("entries", run.EntriesWritten))
	return nil
}

// GetRun returns a generation run by ID.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation run")
	}
	return run, nil
}

// executeRun takes a created run through RUNNING to a terminal state. Runs
// are serialized; see genMu.
func (s *TimetableService) executeRun(ctx context.Context, run *models.GenerationRun, classes []models.Class) error {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	start := time.Now()
	if err := s.runs.MarkRunning(ctx, run.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark generation run running")
	}
	run.Status = models.RunStatusRunning

	result, written, genErr := s.generate(ctx, classes)

	var status models.RunStatus
	var appErr *appErrors.Error
	if genErr != nil {
		status, appErr = classifyEngineError(genErr)
	} else {
		status = models.RunStatusCompleted
	}

	s.finishRun(run, status, appErr, len(classes), written)
	if s.metrics != nil {
		var nodes, backtracks int
		if result != nil {
			nodes, backtracks = result.Nodes, result.Backtracks
		}
		s.metrics.ObserveGeneration(string(run.Scope), string(status), time.Since(start), int64(nodes), int64(backtracks))
	}

	if appErr != nil {
		return appErr
	}

	if err := s.cache.Invalidate(ctx, "timetable:*"); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.Error(err))
	}
	return nil
}

// generate runs the engine against the current catalog and, on success,
// replaces the committed timetables of the given classes. It returns the
// engine result and the number of entries written.
func (s *TimetableService) generate(ctx context.Context, classes []models.Class) (*scheduler.Result, int, error) {
	if len(classes) == 0 {
		return nil, 0, errNoClasses
	}

	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load subjects: %w", err)
	}
	teachers, err := s.teachers.ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load teachers: %w", err)
	}

	grid, err := scheduler.NewGrid(s.cfg.PeriodsPerDay)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", scheduler.ErrQuotaMismatch, err)
	}
	plan, err := scheduler.BuildPlan(grid, engineSubjects(subjects), engineTeachers(teachers))
	if err != nil {
		return nil, 0, err
	}

	classIDs := make([]string, len(classes))
	for i, class := range classes {
		classIDs[i] = class.ID
	}
	problem, err := scheduler.NewProblem(plan, classIDs)
	if err != nil {
		return nil, 0, err
	}

	busyRows, err := s.entries.ListTeacherSlots(ctx, classIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("load committed bookings: %w", err)
	}
	busy := s.buildBusySet(busyRows)

	solveCtx, cancel := context.WithTimeout(ctx, s.cfg.SolveTimeout)
	defer cancel()

	result, err := scheduler.Generate(solveCtx, problem, busy, scheduler.Options{MaxAttempts: s.cfg.MaxAttempts})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]models.TimetableEntry, 0, len(result.Placements))
	for _, placement := range result.Placements {
		entries = append(entries, models.TimetableEntry{
			ClassID:   placement.ClassID,
			DayOfWeek: placement.Slot.Day.String(),
			Period:    placement.Slot.Period,
			SubjectID: placement.Subject.ID,
			TeacherID: placement.Teacher.ID,
		})
	}

	dbStart := time.Now()
	if err := s.entries.ReplaceForClasses(ctx, classIDs, entries); err != nil {
		return result, 0, fmt.Errorf("replace timetable: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("timetable_replace", time.Since(dbStart))
	}
	return result, len(entries), nil
}

func (s *TimetableService) buildBusySet(rows []models.TeacherSlot) scheduler.BusySet {
	busy := scheduler.NewBusySet()
	for _, row := range rows {
		day, ok := scheduler.ParseDay(row.DayOfWeek)
		if !ok {
			s.logger.Warn("skipping booking with unknown day",
				zap.String("day", row.DayOfWeek),
				zap.String("teacher_id", row.TeacherID))
			continue
		}
		busy.Mark(scheduler.Slot{Day: day, Period: row.Period}, row.TeacherID, row.ClassID)
	}
	return busy
}

// finishRun persists the terminal state and mirrors it onto the in-memory
// run so synchronous callers see the outcome without a reload.
func (s *TimetableService) finishRun(run *models.GenerationRun, status models.RunStatus, appErr *appErrors.Error, classesTotal, written int) {
	var code, message *string
	if appErr != nil {
		code, message = &appErr.Code, &appErr.Message
		if appErr.Err != nil {
			detail := fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
			message = &detail
		}
	}

	// Run bookkeeping must survive caller cancellation.
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Finish(finishCtx, run.ID, status, code, message, classesTotal, written); err != nil {
		s.logger.Error("failed to finish generation run", zap.String("run_id", run.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	run.Status = status
	run.ErrorCode = code
	run.ErrorMessage = message
	run.ClassesTotal = classesTotal
	run.EntriesWritten = written
	run.FinishedAt = &now
}

// ClassGrid returns the committed weekly grid of one class, cache-aside.
// The boolean reports whether the payload came from cache.
func (s *TimetableService) ClassGrid(ctx context.Context, classID string) (*dto.ClassTimetableResponse, bool, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	cacheKey := fmt.Sprintf("timetable:class:%s", classID)
	var cached dto.ClassTimetableResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
		return nil, false, fmt.Errorf("get class grid cache: %w", err)
	} else if hit {
		return &cached, true, nil
	}

	rows, err := s.entries.ListSlotsByClass(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class timetable")
	}

	resp := buildClassGrid(class, s.cfg.PeriodsPerDay, rows)
	if err := s.cache.Set(ctx, cacheKey, resp, s.cfg.GridCacheTTL); err != nil {
		s.logger.Warn("cache class grid", zap.Error(err))
	}
	return resp, false, nil
}

// TeacherGrid returns the committed weekly view of one teacher, cache-aside.
func (s *TimetableService) TeacherGrid(ctx context.Context, teacherID string) (*dto.TeacherTimetableResponse, bool, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	cacheKey := fmt.Sprintf("timetable:teacher:%s", teacherID)
	var cached dto.TeacherTimetableResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
		return nil, false, fmt.Errorf("get teacher grid cache: %w", err)
	} else if hit {
		return &cached, true, nil
	}

	rows, err := s.entries.ListSlotsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher timetable")
	}

	resp := buildTeacherGrid(teacher, s.cfg.PeriodsPerDay, rows)
	if err := s.cache.Set(ctx, cacheKey, resp, s.cfg.GridCacheTTL); err != nil {
		s.logger.Warn("cache teacher grid", zap.Error(err))
	}
	return resp, false, nil
}

var errNoClasses = errors.New("no classes to schedule")

// classifyEngineError maps a generation failure onto a run status and an API
// error. Catalog and configuration problems fail the run; negative solve
// outcomes leave it INCOMPLETE with the prior timetable intact.
func classifyEngineError(err error) (models.RunStatus, *appErrors.Error) {
	var noTeacher *scheduler.NoTeacherError
	switch {
	case errors.Is(err, errNoClasses):
		return models.RunStatusFailed, appErrors.Clone(appErrors.ErrPreconditionFailed, "no classes to schedule")
	case errors.Is(err, scheduler.ErrNoSubjects):
		return models.RunStatusFailed, appErrors.Clone(appErrors.ErrNoSubjects, appErrors.ErrNoSubjects.Message)
	case errors.Is(err, scheduler.ErrNoTeachers):
		return models.RunStatusFailed, appErrors.Clone(appErrors.ErrNoTeachers, appErrors.ErrNoTeachers.Message)
	case errors.Is(err, scheduler.ErrTooManySubjects), errors.Is(err, scheduler.ErrQuotaMismatch):
		return models.RunStatusFailed, appErrors.Wrap(err, appErrors.ErrQuotaConfig.Code, appErrors.ErrQuotaConfig.Status, appErrors.ErrQuotaConfig.Message)
	case errors.As(err, &noTeacher):
		return models.RunStatusIncomplete, appErrors.Wrap(err, appErrors.ErrNoAvailableTeacher.Code, appErrors.ErrNoAvailableTeacher.Status, appErrors.ErrNoAvailableTeacher.Message)
	case errors.Is(err, scheduler.ErrInfeasible):
		return models.RunStatusIncomplete, appErrors.Wrap(err, appErrors.ErrTimetableInfeasible.Code, appErrors.ErrTimetableInfeasible.Status, appErrors.ErrTimetableInfeasible.Message)
	case errors.Is(err, scheduler.ErrBudgetExceeded):
		return models.RunStatusIncomplete, appErrors.Wrap(err, appErrors.ErrSolveBudget.Code, appErrors.ErrSolveBudget.Status, appErrors.ErrSolveBudget.Message)
	default:
		return models.RunStatusFailed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}
}

func buildClassGrid(class *models.Class, periodsPerDay int, rows []models.TimetableSlot) *dto.ClassTimetableResponse {
	byDay := make(map[scheduler.Day][]dto.ClassTimetableCell)
	for _, row := range rows {
		day, ok := scheduler.ParseDay(row.DayOfWeek)
		if !ok {
			continue
		}
		byDay[day] = append(byDay[day], dto.ClassTimetableCell{
			Period:      row.Period,
			SubjectID:   row.SubjectID,
			SubjectName: row.SubjectName,
			TeacherID:   row.TeacherID,
			TeacherName: row.TeacherName,
		})
	}

	resp := &dto.ClassTimetableResponse{
		ClassID:       class.ID,
		ClassName:     class.Name,
		PeriodsPerDay: periodsPerDay,
	}
	for _, day := range scheduler.Days() {
		cells := byDay[day]
		sort.Slice(cells, func(i, j int) bool { return cells[i].Period < cells[j].Period })
		resp.Days = append(resp.Days, dto.ClassDayTimetable{Day: day.String(), Periods: cells})
	}
	return resp
}

func buildTeacherGrid(teacher *models.Teacher, periodsPerDay int, rows []models.TimetableSlot) *dto.TeacherTimetableResponse {
	byDay := make(map[scheduler.Day][]dto.TeacherLesson)
	for _, row := range rows {
		day, ok := scheduler.ParseDay(row.DayOfWeek)
		if !ok {
			continue
		}
		byDay[day] = append(byDay[day], dto.TeacherLesson{
			Period:      row.Period,
			ClassID:     row.ClassID,
			ClassName:   row.ClassName,
			SubjectID:   row.SubjectID,
			SubjectName: row.SubjectName,
		})
	}

	resp := &dto.TeacherTimetableResponse{
		TeacherID:     teacher.ID,
		TeacherName:   teacher.FullName,
		PeriodsPerDay: periodsPerDay,
	}
	for _, day := range scheduler.Days() {
		lessons := byDay[day]
		sort.Slice(lessons, func(i, j int) bool { return lessons[i].Period < lessons[j].Period })
		resp.Days = append(resp.Days, dto.TeacherDayTimetable{Day: day.String(), Lessons: lessons})
	}
	return resp
}

func engineSubjects(subjects []models.Subject) []scheduler.Subject {
	out := make([]scheduler.Subject, len(subjects))
	for i, subject := range subjects {
		out[i] = scheduler.Subject{ID: subject.ID, Name: subject.Name}
	}
	return out
}

func engineTeachers(teachers []models.Teacher) []scheduler.Teacher {
	out := make([]scheduler.Teacher, len(teachers))
	for i, teacher := range teachers {
		out[i] = scheduler.Teacher{ID: teacher.ID, Name: teacher.FullName}
	}
	return out
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
