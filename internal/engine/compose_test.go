package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kibuli/schooladmin/internal/models"
)

type fakeRoster struct {
	classOf  map[int64]int64
	students map[int64][]int64
	subjects map[int64][]int64
}

func (r *fakeRoster) StudentClass(_ context.Context, studentID int64, _, _ string) (int64, error) {
	c, ok := r.classOf[studentID]
	if !ok {
		return 0, fmt.Errorf("student %d not found", studentID)
	}
	return c, nil
}

func (r *fakeRoster) ClassStudents(_ context.Context, classID int64, _, _ string) ([]int64, error) {
	return r.students[classID], nil
}

func (r *fakeRoster) RequiredSubjects(_ context.Context, classID int64, _ string) ([]int64, error) {
	return r.subjects[classID], nil
}

type fakeMarks struct {
	bySubject map[string][]models.ExaminationMark // "student/subject"
}

func marksKey(studentID, subjectID int64) string { return fmt.Sprintf("%d/%d", studentID, subjectID) }

func (m *fakeMarks) ListMarks(_ context.Context, studentID, subjectID int64, _, _ string) ([]models.ExaminationMark, error) {
	return m.bySubject[marksKey(studentID, subjectID)], nil
}

type savedResult struct {
	res     models.StudentResult
	details []models.StudentResultDetail
}

type fakeStore struct {
	mu        sync.Mutex
	saved     map[string]savedResult // "student/year/term"
	failWrite map[int64]error
}

func storeKey(studentID int64, year, term string) string {
	return fmt.Sprintf("%d/%s/%s", studentID, year, term)
}

func (s *fakeStore) HasResult(_ context.Context, studentID int64, year, term string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[storeKey(studentID, year, term)]
	return ok, nil
}

func (s *fakeStore) SaveResult(_ context.Context, res *models.StudentResult, details []models.StudentResultDetail, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[res.StudentID]; err != nil {
		return err
	}
	if s.saved == nil {
		s.saved = map[string]savedResult{}
	}
	key := storeKey(res.StudentID, res.AcademicYear, res.Term)
	if _, ok := s.saved[key]; ok && !replace {
		return errors.New("unique violation")
	}
	s.saved[key] = savedResult{res: *res, details: append([]models.StudentResultDetail(nil), details...)}
	return nil
}

type fakeFormulas struct {
	byName map[string]*models.ResultFormula
}

func (f *fakeFormulas) FormulaByName(_ context.Context, name string) (*models.ResultFormula, error) {
	return f.byName[name], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []int64
}

func (n *recordingNotifier) ResultPublished(studentID int64, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, studentID)
}

const (
	yr  = "2024"
	trm = "Term 1"
)

// threeStudentFixture: class 100 with subjects 10 and 20. Students 1 and 2
// average 90, student 3 averages 75.
func threeStudentFixture() (*fakeRoster, *fakeMarks) {
	roster := &fakeRoster{
		classOf:  map[int64]int64{1: 100, 2: 100, 3: 100},
		students: map[int64][]int64{100: {1, 2, 3}},
		subjects: map[int64][]int64{100: {10, 20}},
	}
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mk := func(assignment int64, score float64) models.ExaminationMark {
		return models.ExaminationMark{
			AssignmentID: assignment, TestType: models.TestEndterm, TestDate: day,
			Score: score, MaxScore: 100, Weight: 1,
		}
	}
	marks := &fakeMarks{bySubject: map[string][]models.ExaminationMark{
		marksKey(1, 10): {mk(500, 92)}, marksKey(1, 20): {mk(501, 88)},
		marksKey(2, 10): {mk(500, 95)}, marksKey(2, 20): {mk(501, 85)},
		marksKey(3, 10): {mk(500, 70)}, marksKey(3, 20): {mk(501, 80)},
	}}
	return roster, marks
}

func newTestComposer(roster Roster, marks MarkSource, store ResultStore, formulas FormulaSource, n Notifier) *Composer {
	agg := NewAggregator(marks, NewClassifier(nil, nil))
	return NewComposer(roster, agg, formulas, store, n, nil)
}

func TestComputeStudent_PublishesRankedResult(t *testing.T) {
	roster, marks := threeStudentFixture()
	store := &fakeStore{}
	notifier := &recordingNotifier{}
	c := newTestComposer(roster, marks, store, &fakeFormulas{}, notifier)

	res, err := c.ComputeStudent(context.Background(), 3, yr, trm, ComputeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if res.TotalSubjects != 2 {
		t.Errorf("total subjects = %d, want 2", res.TotalSubjects)
	}
	if res.TotalScore != 150 || res.AverageScore != 75 {
		t.Errorf("total/average = %v/%v, want 150/75", res.TotalScore, res.AverageScore)
	}
	if res.PositionInClass == nil || *res.PositionInClass != 3 {
		t.Errorf("position = %v, want 3 (two classmates tied at 90)", res.PositionInClass)
	}
	if res.TotalStudentsInClass == nil || *res.TotalStudentsInClass != 3 {
		t.Errorf("total students = %v, want 3", res.TotalStudentsInClass)
	}

	saved, ok := store.saved[storeKey(3, yr, trm)]
	if !ok {
		t.Fatal("result was not persisted")
	}
	if len(saved.details) != 2 {
		t.Fatalf("details = %d rows, want 2", len(saved.details))
	}
	if len(notifier.events) != 1 || notifier.events[0] != 3 {
		t.Fatalf("notifier events = %v, want [3]", notifier.events)
	}
}

func TestComputeStudent_InsufficientData(t *testing.T) {
	roster, marks := threeStudentFixture()
	roster.classOf[4] = 100
	roster.students[100] = append(roster.students[100], 4) // no marks at all
	store := &fakeStore{}
	c := newTestComposer(roster, marks, store, &fakeFormulas{}, nil)

	_, err := c.ComputeStudent(context.Background(), 4, yr, trm, ComputeOptions{})
	var dataErr *InsufficientDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("want InsufficientDataError, got %v", err)
	}
	if _, ok := store.saved[storeKey(4, yr, trm)]; ok {
		t.Fatal("no result row may be written for a student without scoreable subjects")
	}
}

func TestComputeStudent_RecomputeGuard(t *testing.T) {
	roster, marks := threeStudentFixture()
	store := &fakeStore{}
	c := newTestComposer(roster, marks, store, &fakeFormulas{}, nil)

	if _, err := c.ComputeStudent(context.Background(), 1, yr, trm, ComputeOptions{}); err != nil {
		t.Fatal(err)
	}

	_, err := c.ComputeStudent(context.Background(), 1, yr, trm, ComputeOptions{})
	var cflErr *ConflictError
	if !errors.As(err, &cflErr) {
		t.Fatalf("second compute without recompute flag: want ConflictError, got %v", err)
	}

	if _, err := c.ComputeStudent(context.Background(), 1, yr, trm, ComputeOptions{Recompute: true}); err != nil {
		t.Fatalf("explicit recompute must succeed: %v", err)
	}
}

func TestComputeStudent_IdempotentRecompute(t *testing.T) {
	roster, marks := threeStudentFixture()
	store := &fakeStore{}
	c := newTestComposer(roster, marks, store, &fakeFormulas{}, nil)

	if _, err := c.ComputeStudent(context.Background(), 2, yr, trm, ComputeOptions{}); err != nil {
		t.Fatal(err)
	}
	first := store.saved[storeKey(2, yr, trm)]

	if _, err := c.ComputeStudent(context.Background(), 2, yr, trm, ComputeOptions{Recompute: true}); err != nil {
		t.Fatal(err)
	}
	second := store.saved[storeKey(2, yr, trm)]

	if first.res.TotalScore != second.res.TotalScore || first.res.AverageScore != second.res.AverageScore {
		t.Fatalf("recompute changed totals: %v vs %v", first.res, second.res)
	}
	if len(first.details) != len(second.details) {
		t.Fatalf("recompute changed detail count: %d vs %d", len(first.details), len(second.details))
	}
	sortDetails := func(d []models.StudentResultDetail) {
		sort.Slice(d, func(i, j int) bool { return d[i].SubjectID < d[j].SubjectID })
	}
	sortDetails(first.details)
	sortDetails(second.details)
	for i := range first.details {
		a, b := first.details[i], second.details[i]
		if a.SubjectID != b.SubjectID || a.Score != b.Score || a.GradeLetter != b.GradeLetter {
			t.Fatalf("detail %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestComputeStudent_UnknownFormulaName(t *testing.T) {
	roster, marks := threeStudentFixture()
	c := newTestComposer(roster, marks, &fakeStore{}, &fakeFormulas{}, nil)

	_, err := c.ComputeStudent(context.Background(), 1, yr, trm, ComputeOptions{FormulaName: "nope"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestComputeStudent_StoredFormulaApplies(t *testing.T) {
	roster, marks := threeStudentFixture()
	// Student 3: subject 10 has marks 70 and 40; best-of-one keeps the 70.
	day := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	marks.bySubject[marksKey(3, 10)] = append(marks.bySubject[marksKey(3, 10)],
		models.ExaminationMark{AssignmentID: 500, TestType: models.TestMidterm, TestDate: day,
			Score: 40, MaxScore: 100, Weight: 1})
	formulas := &fakeFormulas{byName: map[string]*models.ResultFormula{
		"best-one": {Name: "best-one", Formula: `{"mode":"highest_of","count":1}`},
	}}
	store := &fakeStore{}
	c := newTestComposer(roster, marks, store, formulas, nil)

	res, err := c.ComputeStudent(context.Background(), 3, yr, trm, ComputeOptions{FormulaName: "best-one"})
	if err != nil {
		t.Fatal(err)
	}
	// subject 10 -> 70 (best of 70, 40), subject 20 -> 80
	if res.AverageScore != 75 {
		t.Fatalf("average under best-one = %v, want 75", res.AverageScore)
	}
}
