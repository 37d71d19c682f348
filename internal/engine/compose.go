package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kibuli/schooladmin/internal/models"
)

// Roster exposes class membership as plain data. All lookups return empty
// slices, not errors, for empty classes.
type Roster interface {
	// StudentClass resolves the class a student belongs to for the term.
	StudentClass(ctx context.Context, studentID int64, academicYear, term string) (int64, error)
	// ClassStudents lists the enrolled students of a class.
	ClassStudents(ctx context.Context, classID int64, academicYear, term string) ([]int64, error)
	// RequiredSubjects lists the subjects every student of the class sits.
	RequiredSubjects(ctx context.Context, classID int64, academicYear string) ([]int64, error)
}

// ResultStore persists a composed result. SaveResult must write the parent
// row and all detail rows in one transaction; with replace set it must
// swap out any existing result for the same (student, year, term) instead
// of appending.
type ResultStore interface {
	HasResult(ctx context.Context, studentID int64, academicYear, term string) (bool, error)
	SaveResult(ctx context.Context, res *models.StudentResult, details []models.StudentResultDetail, replace bool) error
}

// FormulaSource looks up stored aggregation formulas by name.
type FormulaSource interface {
	FormulaByName(ctx context.Context, name string) (*models.ResultFormula, error)
}

// Notifier receives result_published events. Implementations must be
// non-blocking; the composer neither waits on nor fails because of them.
type Notifier interface {
	ResultPublished(studentID int64, academicYear, term string)
}

// ComputeOptions tune one composition run.
type ComputeOptions struct {
	// FormulaName selects a stored formula; empty means the built-in
	// weighted average. Selection is always explicit, no global default
	// formula is inferred.
	FormulaName string
	// Recompute allows replacing an already published result. Without it a
	// second computation for the same (student, term) is a ConflictError.
	Recompute bool
	// IssuedBy is recorded on the published result.
	IssuedBy *int64
}

// Composer produces StudentResults: per-subject aggregation, class-relative
// ranking, transactional persistence, and a fire-and-forget published
// event.
type Composer struct {
	roster   Roster
	agg      *Aggregator
	formulas FormulaSource
	store    ResultStore
	notifier Notifier
	log      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewComposer(roster Roster, agg *Aggregator, formulas FormulaSource, store ResultStore, notifier Notifier, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		roster:   roster,
		agg:      agg,
		formulas: formulas,
		store:    store,
		notifier: notifier,
		log:      log,
		locks:    map[string]*sync.Mutex{},
	}
}

// resultLock serializes writes per (student, year, term) so concurrent
// recompute calls cannot interleave partial detail rows.
func (c *Composer) resultLock(studentID int64, academicYear, term string) *sync.Mutex {
	key := fmt.Sprintf("%d|%s|%s", studentID, academicYear, term)
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

func (c *Composer) resolveFormula(ctx context.Context, name string) (Formula, error) {
	if name == "" {
		return DefaultFormula, nil
	}
	rf, err := c.formulas.FormulaByName(ctx, name)
	if err != nil {
		return Formula{}, err
	}
	if rf == nil {
		return Formula{}, &ConfigurationError{Formula: name, Msg: "no such formula"}
	}
	return ParseFormula(rf.Name, rf.Formula)
}

// studentScores runs the aggregator over every required subject. Subjects
// with no marks are skipped, not zeroed. An empty return means the student
// has nothing scoreable this term.
func (c *Composer) studentScores(ctx context.Context, studentID int64, subjects []int64, academicYear, term string, formula Formula) ([]SubjectScore, error) {
	scores := make([]SubjectScore, 0, len(subjects))
	for _, subjectID := range subjects {
		s, err := c.agg.ComputeSubject(ctx, studentID, subjectID, academicYear, term, formula)
		if errors.Is(err, ErrNoMarks) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// classAverages computes the term average for every student of the class
// that has at least one scoreable subject. This is the phase-1 snapshot
// ranking runs on; nothing is persisted here.
func (c *Composer) classAverages(ctx context.Context, classID int64, subjects []int64, academicYear, term string, formula Formula) ([]ClassAverage, error) {
	students, err := c.roster.ClassStudents(ctx, classID, academicYear, term)
	if err != nil {
		return nil, err
	}
	averages := make([]ClassAverage, 0, len(students))
	for _, sid := range students {
		scores, err := c.studentScores(ctx, sid, subjects, academicYear, term, formula)
		if err != nil {
			return nil, err
		}
		if len(scores) == 0 {
			continue
		}
		var total float64
		for _, s := range scores {
			total += s.Percentage
		}
		averages = append(averages, ClassAverage{
			StudentID: sid,
			Average:   round2(total / float64(len(scores))),
		})
	}
	return averages, nil
}

// ComputeStudent composes and publishes the StudentResult for one student
// and term. Class rank is derived from a fresh snapshot of every
// classmate's average.
func (c *Composer) ComputeStudent(ctx context.Context, studentID int64, academicYear, term string, opts ComputeOptions) (*models.StudentResult, error) {
	formula, err := c.resolveFormula(ctx, opts.FormulaName)
	if err != nil {
		return nil, err
	}

	classID, err := c.roster.StudentClass(ctx, studentID, academicYear, term)
	if err != nil {
		return nil, err
	}
	subjects, err := c.roster.RequiredSubjects(ctx, classID, academicYear)
	if err != nil {
		return nil, err
	}

	scores, err := c.studentScores(ctx, studentID, subjects, academicYear, term, formula)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, &InsufficientDataError{StudentID: studentID, AcademicYear: academicYear, Term: term}
	}

	averages, err := c.classAverages(ctx, classID, subjects, academicYear, term, formula)
	if err != nil {
		return nil, err
	}
	ranks := Rank(averages)

	res, details := buildResult(studentID, academicYear, term, scores, opts.IssuedBy)
	if pos, ok := ranks[studentID]; ok {
		total := len(averages)
		res.PositionInClass = &pos
		res.TotalStudentsInClass = &total
	}

	if err := c.publish(ctx, res, details, opts.Recompute); err != nil {
		return nil, err
	}
	return res, nil
}

// publish holds the per-key lock, enforces the recompute guard and hands
// the rows to the store, then emits the published event.
func (c *Composer) publish(ctx context.Context, res *models.StudentResult, details []models.StudentResultDetail, recompute bool) error {
	lock := c.resultLock(res.StudentID, res.AcademicYear, res.Term)
	lock.Lock()
	defer lock.Unlock()

	exists, err := c.store.HasResult(ctx, res.StudentID, res.AcademicYear, res.Term)
	if err != nil {
		return err
	}
	if exists && !recompute {
		return &ConflictError{Msg: fmt.Sprintf(
			"result already published for student %d %s %s; pass recompute to replace",
			res.StudentID, res.AcademicYear, res.Term)}
	}

	if err := c.store.SaveResult(ctx, res, details, recompute); err != nil {
		return err
	}

	c.log.Info("result published",
		zap.Int64("student_id", res.StudentID),
		zap.String("academic_year", res.AcademicYear),
		zap.String("term", res.Term),
		zap.Float64("average", res.AverageScore),
		zap.Bool("recompute", recompute))

	if c.notifier != nil {
		c.notifier.ResultPublished(res.StudentID, res.AcademicYear, res.Term)
	}
	return nil
}

func buildResult(studentID int64, academicYear, term string, scores []SubjectScore, issuedBy *int64) (*models.StudentResult, []models.StudentResultDetail) {
	var total float64
	details := make([]models.StudentResultDetail, 0, len(scores))
	for _, s := range scores {
		total += s.Percentage
		details = append(details, models.StudentResultDetail{
			SubjectID:        s.SubjectID,
			SubjectTeacherID: s.SubjectTeacherID,
			Score:            s.Percentage,
			GradeLetter:      s.GradeLetter,
		})
	}
	res := &models.StudentResult{
		StudentID:     studentID,
		AcademicYear:  academicYear,
		Term:          term,
		TotalSubjects: len(scores),
		TotalScore:    round2(total),
		AverageScore:  round2(total / float64(len(scores))),
		DateIssued:    time.Now(),
		IssuedBy:      issuedBy,
	}
	return res, details
}
