package dto

// PlanSubject reports the weekly quota derived for one subject.
type PlanSubject struct {
	SubjectID      string `json:"subjectId"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	WeeklySessions int    `json:"weeklySessions"`
}

// PlanResponse previews the generation plan for the current catalog without
// writing anything.
type PlanResponse struct {
	PeriodsPerDay int           `json:"periodsPerDay"`
	Days          []string      `json:"days"`
	SlotsPerClass int           `json:"slotsPerClass"`
	Subjects      []PlanSubject `json:"subjects"`
	ClassCount    int           `json:"classCount"`
	TeacherCount  int           `json:"teacherCount"`
}

// ClassTimetableCell is one taught period in a class grid.
type ClassTimetableCell struct {
	Period      int    `json:"period"`
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	TeacherID   string `json:"teacherId"`
	TeacherName string `json:"teacherName"`
}

// ClassDayTimetable lists the periods of one day in order.
type ClassDayTimetable struct {
	Day     string               `json:"day"`
	Periods []ClassTimetableCell `json:"periods"`
}

// ClassTimetableResponse is the committed weekly grid of one class.
type ClassTimetableResponse struct {
	ClassID       string              `json:"classId"`
	ClassName     string              `json:"className"`
	PeriodsPerDay int                 `json:"periodsPerDay"`
	Days          []ClassDayTimetable `json:"days"`
}

// TeacherLesson is one booked period in a teacher view.
type TeacherLesson struct {
	Period      int    `json:"period"`
	ClassID     string `json:"classId"`
	ClassName   string `json:"className"`
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
}

// TeacherDayTimetable lists the lessons a teacher gives on one day, ordered
// by period. Slots the teacher is free in do not appear.
type TeacherDayTimetable struct {
	Day     string          `json:"day"`
	Lessons []TeacherLesson `json:"lessons"`
}

// TeacherTimetableResponse is the committed weekly view of one teacher
// across all classes.
type TeacherTimetableResponse struct {
	TeacherID     string                `json:"teacherId"`
	TeacherName   string                `json:"teacherName"`
	PeriodsPerDay int                   `json:"periodsPerDay"`
	Days          []TeacherDayTimetable `json:"days"`
}
