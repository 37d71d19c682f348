//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/kibuli/schooladmin/internal/db"
	"github.com/kibuli/schooladmin/internal/models"
	"github.com/kibuli/schooladmin/internal/testutil/testdb"
)

func intp(v int) *int { return &v }

func TestResultStore_SaveReplaceGet(t *testing.T) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatalf("start db: %v", err)
	}
	defer h.Close()

	f := mustFixture(t, h.DB)
	store := &db.ResultStore{DB: h.DB}
	ctx := context.Background()

	ok, err := store.HasResult(ctx, f.studentID, testYear, testTerm)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("fresh database must have no result")
	}
	if res, details, err := store.GetResult(ctx, f.studentID, testYear, testTerm); err != nil || res != nil || details != nil {
		t.Fatalf("absent result must load as nil, got %v/%v/%v", res, details, err)
	}

	issued := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	res := &models.StudentResult{
		StudentID: f.studentID, AcademicYear: testYear, Term: testTerm,
		TotalSubjects: 1, TotalScore: 84, AverageScore: 84,
		PositionInClass: intp(1), TotalStudentsInClass: intp(1),
		DateIssued: issued,
	}
	details := []models.StudentResultDetail{
		{SubjectID: f.mathID, SubjectTeacherID: &f.assignmentID, Score: 84, GradeLetter: "B"},
	}
	if err := store.SaveResult(ctx, res, details, false); err != nil {
		t.Fatalf("save result: %v", err)
	}
	if res.ID == 0 {
		t.Fatal("save must fill in the result id")
	}

	ok, err = store.HasResult(ctx, f.studentID, testYear, testTerm)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("HasResult must see the saved result")
	}

	// A second plain save hits the unique constraint.
	dup := *res
	dup.ID = 0
	if err := store.SaveResult(ctx, &dup, nil, false); err == nil {
		t.Fatal("second save without replace must fail on the unique constraint")
	}

	// Recompute replaces, never appends: the old parent and its detail rows
	// are swapped for the new set inside one transaction.
	replacement := &models.StudentResult{
		StudentID: f.studentID, AcademicYear: testYear, Term: testTerm,
		TotalSubjects: 1, TotalScore: 90, AverageScore: 90,
		PositionInClass: intp(1), TotalStudentsInClass: intp(1),
		DateIssued: issued,
	}
	newDetails := []models.StudentResultDetail{
		{SubjectID: f.mathID, SubjectTeacherID: &f.assignmentID, Score: 90, GradeLetter: "A"},
	}
	if err := store.SaveResult(ctx, replacement, newDetails, true); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, gotDetails, err := store.GetResult(ctx, f.studentID, testYear, testTerm)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AverageScore != 90 {
		t.Fatalf("loaded result = %+v, want the replacement", got)
	}
	if len(gotDetails) != 1 || gotDetails[0].Score != 90 || gotDetails[0].GradeLetter != "A" {
		t.Fatalf("details = %+v, want exactly the replacement row", gotDetails)
	}

	// No orphaned detail rows survive the replace.
	var orphans int
	if err := h.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM student_result_details d
		LEFT JOIN student_results r ON r.id = d.result_id
		WHERE r.id IS NULL`).Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Fatalf("%d orphaned detail rows after replace", orphans)
	}
}

func TestFormulaStore_Seeded(t *testing.T) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatalf("start db: %v", err)
	}
	defer h.Close()

	store := &db.FormulaStore{DB: h.DB}
	ctx := context.Background()

	fm, err := store.FormulaByName(ctx, "standard")
	if err != nil {
		t.Fatal(err)
	}
	if fm == nil {
		t.Fatal("seed must provide the standard formula")
	}

	missing, err := store.FormulaByName(ctx, "no-such-formula")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("unknown formula must load as nil, got %+v", missing)
	}
}
