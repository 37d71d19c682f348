package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kibuli/schooladmin/internal/models"
)

type AssignmentStore struct {
	DB *sql.DB
}

func (s *AssignmentStore) Create(ctx context.Context, a models.TeacherAssignment) (*models.TeacherAssignment, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	a.IsActive = true
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO teacher_assignments (teacher_id, subject_id, class_id, academic_year, term, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at`,
		a.TeacherID, a.SubjectID, a.ClassID, a.AcademicYear, a.Term,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return &a, nil
}

func (s *AssignmentStore) ListByClass(ctx context.Context, classID int64, academicYear, term string) ([]models.TeacherAssignment, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, teacher_id, subject_id, class_id, academic_year, term, is_active, created_at
		FROM teacher_assignments
		WHERE class_id = $1 AND academic_year = $2 AND term = $3
		ORDER BY subject_id, id`,
		classID, academicYear, term)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.TeacherAssignment
	for rows.Next() {
		var a models.TeacherAssignment
		if err := rows.Scan(&a.ID, &a.TeacherID, &a.SubjectID, &a.ClassID,
			&a.AcademicYear, &a.Term, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deactivate retires an assignment. Its marks stay on record but stop
// counting in new aggregations, which only read active assignments;
// already published results are untouched.
func (s *AssignmentStore) Deactivate(ctx context.Context, id int64) error {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, `UPDATE teacher_assignments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
