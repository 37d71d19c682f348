package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kibuli/schooladmin/internal/engine"
	"github.com/kibuli/schooladmin/internal/metrics"
	"github.com/kibuli/schooladmin/internal/models"
)

const pgUniqueViolation = "23505"

// MarkStore is the bookkeeping side of examination marks. The engine only
// ever reads through ListMarks; writes come from the teacher-facing API.
type MarkStore struct {
	DB *sql.DB
}

// RecordMark validates and inserts one mark. A second mark for the same
// (assignment, student, test type, date) tuple is a ConflictError; the
// unique index backs the check so concurrent writers cannot race past it.
func (s *MarkStore) RecordMark(ctx context.Context, m models.ExaminationMark) (*models.ExaminationMark, error) {
	if m.MaxScore <= 0 {
		return nil, &engine.ValidationError{Field: "max_score", Msg: "must be > 0"}
	}
	if m.Score < 0 || m.Score > m.MaxScore {
		return nil, &engine.ValidationError{Field: "score",
			Msg: fmt.Sprintf("must be within [0, %v]", m.MaxScore)}
	}
	// A zero-weight mark would make the aggregate undefined, so it is
	// rejected here rather than discovered at composition time.
	if m.Weight <= 0 {
		return nil, &engine.ValidationError{Field: "weight", Msg: "must be > 0"}
	}

	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO examination_marks
			(assignment_id, student_id, test_type, test_date, score, max_score, weight, remarks, entered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, 0))
		RETURNING id, created_at`,
		m.AssignmentID, m.StudentID, m.TestType, m.TestDate,
		m.Score, m.MaxScore, m.Weight, m.Remarks, m.EnteredBy,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &engine.ConflictError{Msg: fmt.Sprintf(
				"mark already recorded for assignment %d student %d %s on %s",
				m.AssignmentID, m.StudentID, m.TestType, m.TestDate.Format("2006-01-02"))}
		}
		return nil, fmt.Errorf("record mark: %w", err)
	}
	metrics.MarksRecorded.Inc()
	return &m, nil
}

// ListMarks returns every mark for the student in the subject, across all
// active assignments matching the student's class, year and term. Several
// assignments per subject are expected when a substitute took over
// mid-term.
func (s *MarkStore) ListMarks(ctx context.Context, studentID, subjectID int64, academicYear, term string) ([]models.ExaminationMark, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT m.id, m.assignment_id, m.student_id, m.test_type, m.test_date,
		       m.score, m.max_score, m.weight, COALESCE(m.remarks, ''),
		       COALESCE(m.entered_by, 0), m.created_at
		FROM examination_marks m
		JOIN teacher_assignments ta ON ta.id = m.assignment_id
		JOIN students st ON st.id = m.student_id
		WHERE m.student_id = $1
		  AND ta.subject_id = $2
		  AND ta.academic_year = $3
		  AND ta.term = $4
		  AND ta.is_active
		  AND ta.class_id = st.class_id
		ORDER BY m.test_date, m.id`,
		studentID, subjectID, academicYear, term)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ExaminationMark
	for rows.Next() {
		var m models.ExaminationMark
		if err := rows.Scan(&m.ID, &m.AssignmentID, &m.StudentID, &m.TestType, &m.TestDate,
			&m.Score, &m.MaxScore, &m.Weight, &m.Remarks, &m.EnteredBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
