package engine

import (
	"context"
	"math"
	"sort"

	"github.com/kibuli/schooladmin/internal/models"
)

// MarkSource is the read side of the mark store. ListMarks resolves the
// subject through active teacher assignments on the student's class, so
// marks from several assignments (a substitute mid-term, say) all count.
type MarkSource interface {
	ListMarks(ctx context.Context, studentID, subjectID int64, academicYear, term string) ([]models.ExaminationMark, error)
}

// SubjectScore is one subject's composite: the weighted-normalized
// percentage and its letter grade.
type SubjectScore struct {
	SubjectID        int64
	SubjectTeacherID *int64
	Percentage       float64
	GradeLetter      string
}

// Aggregator rolls raw examination marks for one (student, subject, term)
// into a SubjectScore.
type Aggregator struct {
	marks      MarkSource
	classifier *Classifier
}

func NewAggregator(marks MarkSource, classifier *Classifier) *Aggregator {
	return &Aggregator{marks: marks, classifier: classifier}
}

// ComputeSubject aggregates the student's marks for one subject using the
// given formula. Returns ErrNoMarks when the student has no marks at all
// for the subject; callers exclude such subjects from the result instead
// of scoring them zero.
func (a *Aggregator) ComputeSubject(ctx context.Context, studentID, subjectID int64, academicYear, term string, formula Formula) (SubjectScore, error) {
	marks, err := a.marks.ListMarks(ctx, studentID, subjectID, academicYear, term)
	if err != nil {
		return SubjectScore{}, err
	}
	if len(marks) == 0 {
		return SubjectScore{}, ErrNoMarks
	}

	pct, err := Aggregate(marks, formula)
	if err != nil {
		return SubjectScore{}, err
	}

	// Attribute the subject line to the assignment behind the most recent
	// mark; with a single teacher all marks share it anyway.
	latest := marks[0]
	for _, m := range marks[1:] {
		if m.TestDate.After(latest.TestDate) {
			latest = m
		}
	}
	assignmentID := latest.AssignmentID

	return SubjectScore{
		SubjectID:        subjectID,
		SubjectTeacherID: &assignmentID,
		Percentage:       pct,
		GradeLetter:      a.classifier.Classify(pct),
	}, nil
}

// Aggregate computes the composite percentage for a non-empty mark set
// under the given formula. Exposed separately so formula previews and tests
// can run without a MarkSource.
func Aggregate(marks []models.ExaminationMark, formula Formula) (float64, error) {
	if err := formula.validateParams(""); err != nil {
		return 0, err
	}
	if len(marks) == 0 {
		return 0, ErrNoMarks
	}
	switch formula.Mode {
	case "", ModeWeightedAverage:
		return weightedAverage(marks, nil)
	case ModeSimpleAverage:
		return simpleAverage(marks)
	case ModeHighestOf:
		return highestOf(marks, formula.Count)
	case ModeCustomWeightsByTestType:
		return weightedAverage(marks, formula.Weights)
	default:
		return 0, &ConfigurationError{Msg: "unknown aggregation mode " + formula.Mode}
	}
}

// weightedAverage normalizes each mark to a 0..100 scale before weighting,
// so tests with different max scores combine correctly. overrides, when
// non-nil, replaces a mark's weight by its test type.
func weightedAverage(marks []models.ExaminationMark, overrides map[string]float64) (float64, error) {
	var sum, wsum float64
	for _, m := range marks {
		if m.MaxScore <= 0 {
			return 0, &ValidationError{Field: "max_score", Msg: "must be > 0"}
		}
		w := m.Weight
		if ow, ok := overrides[m.TestType]; ok {
			w = ow
		}
		if w <= 0 {
			return 0, &ValidationError{Field: "weight", Msg: "must be > 0"}
		}
		sum += m.Score / m.MaxScore * 100 * w
		wsum += w
	}
	// Unreachable when marks come through RecordMark, which rejects
	// non-positive weights; guarded anyway.
	if wsum == 0 {
		return 0, &ValidationError{Field: "weight", Msg: "total weight is zero"}
	}
	return round2(sum / wsum), nil
}

func simpleAverage(marks []models.ExaminationMark) (float64, error) {
	var sum float64
	for _, m := range marks {
		if m.MaxScore <= 0 {
			return 0, &ValidationError{Field: "max_score", Msg: "must be > 0"}
		}
		sum += m.Score / m.MaxScore * 100
	}
	return round2(sum / float64(len(marks))), nil
}

// highestOf averages the n best normalized percentages; with fewer than n
// marks it uses all of them.
func highestOf(marks []models.ExaminationMark, n int) (float64, error) {
	pcts := make([]float64, 0, len(marks))
	for _, m := range marks {
		if m.MaxScore <= 0 {
			return 0, &ValidationError{Field: "max_score", Msg: "must be > 0"}
		}
		pcts = append(pcts, m.Score/m.MaxScore*100)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(pcts)))
	if n > len(pcts) {
		n = len(pcts)
	}
	var sum float64
	for _, p := range pcts[:n] {
		sum += p
	}
	return round2(sum / float64(n)), nil
}

// round2 rounds to 2 decimal places, ties to even (Go's banker's rounding).
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
