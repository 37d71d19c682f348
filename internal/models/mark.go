package models

import "time"

// Test types are stored as free strings so schools can add their own kinds
// of assessment; these are the ones seeded by default.
const (
	TestMidterm    = "midterm"
	TestEndterm    = "endterm"
	TestAssignment = "assignment"
	TestFinal      = "final"
)

// TeacherAssignment links a teacher to a subject taught to a class during
// one term of an academic year. Marks always hang off an assignment, never
// directly off a subject.
type TeacherAssignment struct {
	ID           int64
	TeacherID    int64
	SubjectID    int64
	ClassID      int64
	AcademicYear string
	Term         string
	IsActive     bool
	CreatedAt    time.Time
}

// ExaminationMark is one raw test entry made by a teacher. Score is on the
// 0..MaxScore scale of that particular test; Weight is the relative weight
// the test carries when marks are rolled up into a subject composite.
type ExaminationMark struct {
	ID           int64
	AssignmentID int64
	StudentID    int64
	TestType     string
	TestDate     time.Time
	Score        float64
	MaxScore     float64
	Weight       float64
	Remarks      string
	EnteredBy    int64
	CreatedAt    time.Time
}
