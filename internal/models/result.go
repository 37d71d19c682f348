package models

import "time"

// StudentResult is the published per-term academic summary for one student.
// Unique per (student, academic year, term); recomputation replaces the
// details wholesale rather than patching rows.
type StudentResult struct {
	ID                   int64
	StudentID            int64
	AcademicYear         string
	Term                 string
	TotalSubjects        int
	TotalScore           float64
	AverageScore         float64
	PositionInClass      *int
	TotalStudentsInClass *int
	Remarks              string
	DateIssued           time.Time
	IssuedBy             *int64
}

// StudentResultDetail is one subject line of a StudentResult. The parent
// result owns these rows; deleting the result cascades to them.
type StudentResultDetail struct {
	ID               int64
	ResultID         int64
	SubjectID        int64
	SubjectTeacherID *int64
	Score            float64
	GradeLetter      string
	Remarks          string
}
