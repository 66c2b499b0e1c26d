package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimetableRepository persists committed timetable entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// ReplaceForClasses swaps the timetables of the given classes for the given
// entries inside one transaction: delete everything the classes had, insert
// the new rows, commit. On any failure the transaction rolls back and the
// previously committed timetable stays untouched.
func (r *TimetableRepository) ReplaceForClasses(ctx context.Context, classIDs []string, entries []models.TimetableEntry) error {
	if len(classIDs) == 0 {
		return fmt.Errorf("replace timetable: no classes given")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM timetable_entries WHERE class_id = ANY($1)`, pq.Array(classIDs)); err != nil {
		return fmt.Errorf("delete timetable entries: %w", err)
	}

	if err = r.bulkInsertEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace timetable: %w", err)
	}
	return nil
}

func (r *TimetableRepository) bulkInsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error {
	const query = `INSERT INTO timetable_entries (id, class_id, day_of_week, period, subject_id, teacher_id, created_at) VALUES (:id, :class_id, :day_of_week, :period, :subject_id, :teacher_id, :created_at)`
	now := time.Now().UTC()
	for i := range entries {
		entry := entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, query, entry); err != nil {
			return fmt.Errorf("insert timetable entry: %w", err)
		}
	}
	return nil
}

// ListSlotsByClass returns the committed grid of one class with subject and
// teacher names joined in.
func (r *TimetableRepository) ListSlotsByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error) {
	const query = `SELECT e.class_id, c.name AS class_name, e.day_of_week, e.period, e.subject_id, s.name AS subject_name, e.teacher_id, t.full_name AS teacher_name
FROM timetable_entries e
JOIN classes c ON c.id = e.class_id
JOIN subjects s ON s.id = e.subject_id
JOIN teachers t ON t.id = e.teacher_id
WHERE e.class_id = $1 ORDER BY e.day_of_week ASC, e.period ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, classID); err != nil {
		return nil, fmt.Errorf("list timetable by class: %w", err)
	}
	return slots, nil
}

// ListSlotsByTeacher returns every committed slot a teacher is booked for,
// across all classes.
func (r *TimetableRepository) ListSlotsByTeacher(ctx context.Context, teacherID string) ([]models.TimetableSlot, error) {
	const query = `SELECT e.class_id, c.name AS class_name, e.day_of_week, e.period, e.subject_id, s.name AS subject_name, e.teacher_id, t.full_name AS teacher_name
FROM timetable_entries e
JOIN classes c ON c.id = e.class_id
JOIN subjects s ON s.id = e.subject_id
JOIN teachers t ON t.id = e.teacher_id
WHERE e.teacher_id = $1 ORDER BY e.day_of_week ASC, e.period ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list timetable by teacher: %w", err)
	}
	return slots, nil
}

// ListTeacherSlots returns the committed teacher bookings outside the given
// classes. A run regenerating those classes must treat every returned slot
// as occupied.
func (r *TimetableRepository) ListTeacherSlots(ctx context.Context, excludeClassIDs []string) ([]models.TeacherSlot, error) {
	query := `SELECT teacher_id, class_id, day_of_week, period FROM timetable_entries`
	var args []interface{}
	if len(excludeClassIDs) > 0 {
		query += ` WHERE NOT (class_id = ANY($1))`
		args = append(args, pq.Array(excludeClassIDs))
	}
	var slots []models.TeacherSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher slots: %w", err)
	}
	return slots, nil
}
