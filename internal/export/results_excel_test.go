package export

import (
	"testing"

	"github.com/kibuli/schooladmin/internal/models"
)

func intp(v int) *int { return &v }

func TestBuildClassWorkbook(t *testing.T) {
	data := ClassResults{
		ClassName:    "S4 East",
		AcademicYear: "2024",
		Term:         "Term 1",
		Subjects: []models.Subject{
			{ID: 10, Name: "Mathematics", Code: "MTC"},
			{ID: 20, Name: "English", Code: "ENG"},
		},
		Students: []StudentRow{
			{
				StudentName:     "Okello John",
				AdmissionNumber: "ADM-001",
				Result: models.StudentResult{
					TotalSubjects: 2, TotalScore: 175, AverageScore: 87.5,
					PositionInClass: intp(1), TotalStudentsInClass: intp(2),
				},
				Details: []models.StudentResultDetail{
					{SubjectID: 10, Score: 90, GradeLetter: "A"},
					{SubjectID: 20, Score: 85, GradeLetter: "B"},
				},
			},
			{
				StudentName:     "Namuli Grace",
				AdmissionNumber: "ADM-002",
				Result: models.StudentResult{
					TotalSubjects: 1, TotalScore: 72, AverageScore: 72,
					PositionInClass: intp(2), TotalStudentsInClass: intp(2),
				},
				// English has no marks: the cell stays empty, not zero.
				Details: []models.StudentResultDetail{
					{SubjectID: 10, Score: 72, GradeLetter: "C"},
				},
			},
		},
	}

	f, err := BuildClassWorkbook(data)
	if err != nil {
		t.Fatal(err)
	}
	sheet := "Term 1 2024"

	got, err := f.GetCellValue(sheet, "A2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Okello John" {
		t.Errorf("A2 = %q, want student name", got)
	}

	// Row 3, Mathematics score/grade in columns C/D.
	if v, _ := f.GetCellValue(sheet, "C3"); v != "72.00" {
		t.Errorf("C3 = %q, want 72.00", v)
	}
	if v, _ := f.GetCellValue(sheet, "D3"); v != "C" {
		t.Errorf("D3 = %q, want C", v)
	}
	// English untaken: empty, not zero.
	if v, _ := f.GetCellValue(sheet, "E3"); v != "" {
		t.Errorf("E3 = %q, want empty", v)
	}

	// Position column is the last one: J (2 + 2*2 + 4 columns).
	if v, _ := f.GetCellValue(sheet, "J2"); v != "1 of 2" {
		t.Errorf("J2 = %q, want '1 of 2'", v)
	}
}

func TestBuildResultSheetFilename(t *testing.T) {
	got := BuildResultSheetFilename(`S4 "East"/West`, "2024", "Term 1")
	for _, c := range `\/:*?"<>|` {
		if containsRune(got, c) {
			t.Fatalf("filename %q contains invalid char %q", got, string(c))
		}
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
