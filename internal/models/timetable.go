package models

import "time"

// TimetableEntry is one committed cell of the weekly timetable: a subject
// taught by a teacher to a class in a single (day, period) slot.
type TimetableEntry struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	Period    int       `db:"period" json:"period"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TimetableSlot is a timetable entry joined with catalog names, the row
// shape behind both the by-class and the by-teacher grid views.
type TimetableSlot struct {
	ClassID     string `db:"class_id" json:"class_id"`
	ClassName   string `db:"class_name" json:"class_name"`
	DayOfWeek   string `db:"day_of_week" json:"day_of_week"`
	Period      int    `db:"period" json:"period"`
	SubjectID   string `db:"subject_id" json:"subject_id"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// TeacherSlot is the minimal committed-booking row used to build the busy
// view a generation run must not collide with.
type TeacherSlot struct {
	TeacherID string `db:"teacher_id"`
	ClassID   string `db:"class_id"`
	DayOfWeek string `db:"day_of_week"`
	Period    int    `db:"period"`
}
