package models

import "time"

type Class struct {
	ID           int64
	Name         string
	TeacherID    *int64
	Capacity     int
	AcademicYear string
	IsActive     bool
}

type Subject struct {
	ID      int64
	Name    string
	Code    string
	Credits int
}

type Student struct {
	ID              int64
	FullName        string
	AdmissionNumber string
	ClassID         *int64
	AdmissionDate   time.Time
}

type Teacher struct {
	ID         int64
	UserID     int64
	EmployeeID string
	FullName   string
	Department string
}

// ClassSubject enrolls a whole class into a subject: every student of the
// class is expected to sit that subject in the given academic year.
type ClassSubject struct {
	ID        int64
	ClassID   int64
	SubjectID int64
}
