package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kibuli/schooladmin/internal/models"
)

// ResultStore persists published StudentResults. The parent row and its
// detail rows always move together inside one transaction: a result is
// either fully written or not written at all.
type ResultStore struct {
	DB *sql.DB
}

func (s *ResultStore) HasResult(ctx context.Context, studentID int64, academicYear, term string) (bool, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	var one int
	err := s.DB.QueryRowContext(ctx, `
		SELECT 1 FROM student_results
		WHERE student_id = $1 AND academic_year = $2 AND term = $3`,
		studentID, academicYear, term).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has result: %w", err)
	}
	return true, nil
}

// SaveResult writes the result and its details atomically. With replace
// set, an existing result for the same (student, year, term) is deleted
// first inside the same transaction, so recomputation swaps the rows
// instead of appending; the unique constraint on student_results makes a
// concurrent double insert impossible either way.
func (s *ResultStore) SaveResult(ctx context.Context, res *models.StudentResult, details []models.StudentResultDetail, replace bool) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		// Detail rows go with the parent via ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM student_results
			WHERE student_id = $1 AND academic_year = $2 AND term = $3`,
			res.StudentID, res.AcademicYear, res.Term); err != nil {
			return fmt.Errorf("replace result: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO student_results
			(student_id, academic_year, term, total_subjects, total_score, average_score,
			 position_in_class, total_students_in_class, remarks, date_issued, issued_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		RETURNING id`,
		res.StudentID, res.AcademicYear, res.Term, res.TotalSubjects,
		res.TotalScore, res.AverageScore, res.PositionInClass, res.TotalStudentsInClass,
		res.Remarks, res.DateIssued, res.IssuedBy,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for i := range details {
		details[i].ResultID = res.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO student_result_details
				(result_id, subject_id, subject_teacher_id, score, grade_letter, remarks)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
			RETURNING id`,
			details[i].ResultID, details[i].SubjectID, details[i].SubjectTeacherID,
			details[i].Score, details[i].GradeLetter, details[i].Remarks,
		).Scan(&details[i].ID)
		if err != nil {
			return fmt.Errorf("insert result detail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save result: %w", err)
	}
	return nil
}

// GetResult loads a published result with its detail rows, or nil when
// none exists.
func (s *ResultStore) GetResult(ctx context.Context, studentID int64, academicYear, term string) (*models.StudentResult, []models.StudentResultDetail, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	var res models.StudentResult
	var remarks sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, student_id, academic_year, term, total_subjects, total_score, average_score,
		       position_in_class, total_students_in_class, remarks, date_issued, issued_by
		FROM student_results
		WHERE student_id = $1 AND academic_year = $2 AND term = $3`,
		studentID, academicYear, term,
	).Scan(&res.ID, &res.StudentID, &res.AcademicYear, &res.Term, &res.TotalSubjects,
		&res.TotalScore, &res.AverageScore, &res.PositionInClass, &res.TotalStudentsInClass,
		&remarks, &res.DateIssued, &res.IssuedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get result: %w", err)
	}
	res.Remarks = remarks.String

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, result_id, subject_id, subject_teacher_id, score, grade_letter, COALESCE(remarks, '')
		FROM student_result_details
		WHERE result_id = $1
		ORDER BY subject_id`, res.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get result details: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var details []models.StudentResultDetail
	for rows.Next() {
		var d models.StudentResultDetail
		if err := rows.Scan(&d.ID, &d.ResultID, &d.SubjectID, &d.SubjectTeacherID,
			&d.Score, &d.GradeLetter, &d.Remarks); err != nil {
			return nil, nil, err
		}
		details = append(details, d)
	}
	return &res, details, rows.Err()
}
