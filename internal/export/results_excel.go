package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kibuli/schooladmin/internal/models"
)

// ClassResults is the plain-data input for a class result sheet; callers
// assemble it from the result store and the roster so this package touches
// no database.
type ClassResults struct {
	ClassName    string
	AcademicYear string
	Term         string
	// Subjects in column order.
	Subjects []models.Subject
	Students []StudentRow
}

type StudentRow struct {
	StudentName     string
	AdmissionNumber string
	Result          models.StudentResult
	Details         []models.StudentResultDetail
}

// BuildClassWorkbook renders one sheet: a row per student, a score/grade
// column pair per subject, then totals, average and class position.
func BuildClassWorkbook(data ClassResults) (*excelize.File, error) {
	header := []string{"Student", "Admission No."}
	for _, s := range data.Subjects {
		header = append(header, s.Name, s.Code+" grade")
	}
	header = append(header, "Subjects", "Total", "Average", "Position")

	rows := make([][]string, 0, len(data.Students))
	for _, st := range data.Students {
		byCol := make(map[int64]models.StudentResultDetail, len(st.Details))
		for _, d := range st.Details {
			byCol[d.SubjectID] = d
		}
		row := []string{st.StudentName, st.AdmissionNumber}
		for _, s := range data.Subjects {
			if d, ok := byCol[s.ID]; ok {
				row = append(row, strconv.FormatFloat(d.Score, 'f', 2, 64), d.GradeLetter)
			} else {
				row = append(row, "", "") // no marks: subject excluded, not zero
			}
		}
		row = append(row,
			strconv.Itoa(st.Result.TotalSubjects),
			strconv.FormatFloat(st.Result.TotalScore, 'f', 2, 64),
			strconv.FormatFloat(st.Result.AverageScore, 'f', 2, 64),
			formatPosition(st.Result.PositionInClass, st.Result.TotalStudentsInClass))
		rows = append(rows, row)
	}

	title := fmt.Sprintf("%s %s", data.Term, data.AcademicYear)
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", title); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for col, h := range header {
		cell := fmt.Sprintf("%s1", columnName(col+1))
		if err := f.SetCellStr(title, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	for r, row := range rows {
		for c, val := range row {
			cell := fmt.Sprintf("%s%d", columnName(c+1), r+2)
			if err := f.SetCellStr(title, cell, val); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	if err := ApplyDefaultFormatting(f, title); err != nil {
		return nil, err
	}
	return f, nil
}

func formatPosition(pos, total *int) string {
	if pos == nil || total == nil {
		return ""
	}
	return fmt.Sprintf("%d of %d", *pos, *total)
}
