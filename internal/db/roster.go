package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kibuli/schooladmin/internal/models"
)

// RosterStore answers class-membership questions for the result composer.
// All rows are loaded up front into plain slices; the engine never follows
// lazy relations.
type RosterStore struct {
	DB *sql.DB
}

// StudentClass resolves the class the student currently belongs to.
func (s *RosterStore) StudentClass(ctx context.Context, studentID int64, academicYear, term string) (int64, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	var classID sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT class_id FROM students WHERE id = $1`, studentID).Scan(&classID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("student %d not found", studentID)
	}
	if err != nil {
		return 0, fmt.Errorf("student class: %w", err)
	}
	if !classID.Valid {
		return 0, fmt.Errorf("student %d is not enrolled in a class", studentID)
	}
	return classID.Int64, nil
}

// ClassStudents lists enrolled students. An empty class yields an empty
// slice, never an error.
func (s *RosterStore) ClassStudents(ctx context.Context, classID int64, academicYear, term string) ([]int64, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM students WHERE class_id = $1 ORDER BY id`, classID)
	if err != nil {
		return nil, fmt.Errorf("class students: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RequiredSubjects lists the subjects every student of the class sits,
// from the class_subjects enrollment table.
func (s *RosterStore) RequiredSubjects(ctx context.Context, classID int64, academicYear string) ([]int64, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT subject_id FROM class_subjects WHERE class_id = $1 ORDER BY subject_id`, classID)
	if err != nil {
		return nil, fmt.Errorf("required subjects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClassByID returns nil when the class does not exist.
func (s *RosterStore) ClassByID(ctx context.Context, id int64) (*models.Class, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	var c models.Class
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, teacher_id, capacity, academic_year, is_active
		FROM classes WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.TeacherID, &c.Capacity, &c.AcademicYear, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("class by id: %w", err)
	}
	return &c, nil
}

// StudentsOfClass returns full student rows, for result sheets.
func (s *RosterStore) StudentsOfClass(ctx context.Context, classID int64) ([]models.Student, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, full_name, admission_number, class_id, COALESCE(admission_date, 'epoch'::date)
		FROM students WHERE class_id = $1 ORDER BY full_name, id`, classID)
	if err != nil {
		return nil, fmt.Errorf("students of class: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Student
	for rows.Next() {
		var st models.Student
		if err := rows.Scan(&st.ID, &st.FullName, &st.AdmissionNumber, &st.ClassID, &st.AdmissionDate); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SubjectsOfClass returns the class's required subjects as full rows, in
// name order.
func (s *RosterStore) SubjectsOfClass(ctx context.Context, classID int64) ([]models.Subject, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT sub.id, sub.name, sub.code, sub.credits
		FROM class_subjects cs
		JOIN subjects sub ON sub.id = cs.subject_id
		WHERE cs.class_id = $1
		ORDER BY sub.name`, classID)
	if err != nil {
		return nil, fmt.Errorf("subjects of class: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Subject
	for rows.Next() {
		var sub models.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Code, &sub.Credits); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ActiveClasses lists classes flagged active, for term-end batch runs.
func (s *RosterStore) ActiveClasses(ctx context.Context) ([]int64, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM classes WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
