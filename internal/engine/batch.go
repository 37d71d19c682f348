package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kibuli/schooladmin/internal/metrics"
	"github.com/kibuli/schooladmin/internal/models"
)

// ClassComputeOptions tune a class-wide run.
type ClassComputeOptions struct {
	ComputeOptions
	// Workers bounds phase-1 parallelism. Zero means defaultWorkers.
	Workers int
}

const defaultWorkers = 4

// StudentOutcome is one student's line in a batch report: either the
// published result or the reason this student was skipped/failed.
type StudentOutcome struct {
	StudentID int64
	Result    *models.StudentResult
	Err       error
}

// ClassReport enumerates per-student outcomes of a class-wide run. One
// student's failure never aborts the batch; only context cancellation does.
type ClassReport struct {
	ClassID      int64
	AcademicYear string
	Term         string
	Outcomes     []StudentOutcome
}

func (r *ClassReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

type studentScoresOut struct {
	studentID int64
	scores    []SubjectScore
	err       error
}

// ComputeClass computes and publishes results for every student of a class
// in two phases. Phase 1 aggregates per-student subject scores in parallel:
// each student's marks are independent, so a bounded worker pool fans out
// over the roster. Ranking needs every average before any position is
// final, so phase 2 starts only after the pool has fully drained; it
// assigns ranks from the complete snapshot and persists results serially.
// Cancellation is honored between students, never mid-student.
func (c *Composer) ComputeClass(ctx context.Context, classID int64, academicYear, term string, opts ClassComputeOptions) (*ClassReport, error) {
	started := time.Now()

	formula, err := c.resolveFormula(ctx, opts.FormulaName)
	if err != nil {
		return nil, err
	}
	students, err := c.roster.ClassStudents(ctx, classID, academicYear, term)
	if err != nil {
		return nil, err
	}
	subjects, err := c.roster.RequiredSubjects(ctx, classID, academicYear)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(students) {
		workers = len(students)
	}

	// Phase 1: parallel per-student aggregation.
	in := make(chan int64)
	out := make(chan studentScoresOut)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sid := range in {
				scores, err := c.studentScores(ctx, sid, subjects, academicYear, term, formula)
				out <- studentScoresOut{studentID: sid, scores: scores, err: err}
			}
		}()
	}
	go func() {
		defer close(in)
		for _, sid := range students {
			select {
			case <-ctx.Done():
				return
			case in <- sid:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	byStudent := make(map[int64][]SubjectScore, len(students))
	failures := make(map[int64]error)
	for res := range out {
		if res.err != nil {
			failures[res.studentID] = res.err
			continue
		}
		byStudent[res.studentID] = res.scores
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Ranking barrier: every average is known before any rank is assigned.
	averages := make([]ClassAverage, 0, len(byStudent))
	for sid, scores := range byStudent {
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
	ranks := Rank(averages)
	ranked := len(averages)

	// Phase 2: serial rank assignment and persistence, in roster order.
	report := &ClassReport{ClassID: classID, AcademicYear: academicYear, Term: term}
	for _, sid := range students {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err, ok := failures[sid]; ok {
			report.Outcomes = append(report.Outcomes, StudentOutcome{StudentID: sid, Err: err})
			metrics.ResultFailures.Inc()
			continue
		}
		scores := byStudent[sid]
		if len(scores) == 0 {
			err := &InsufficientDataError{StudentID: sid, AcademicYear: academicYear, Term: term}
			report.Outcomes = append(report.Outcomes, StudentOutcome{StudentID: sid, Err: err})
			metrics.ResultFailures.Inc()
			continue
		}

		res, details := buildResult(sid, academicYear, term, scores, opts.IssuedBy)
		pos := ranks[sid]
		res.PositionInClass = &pos
		res.TotalStudentsInClass = &ranked

		if err := c.publish(ctx, res, details, opts.Recompute); err != nil {
			report.Outcomes = append(report.Outcomes, StudentOutcome{StudentID: sid, Err: err})
			metrics.ResultFailures.Inc()
			continue
		}
		report.Outcomes = append(report.Outcomes, StudentOutcome{StudentID: sid, Result: res})
		metrics.ResultsComputed.Inc()
	}

	metrics.ObserveClassBatch(time.Since(started))
	c.log.Info("class batch finished",
		zap.Int64("class_id", classID),
		zap.String("academic_year", academicYear),
		zap.String("term", term),
		zap.Int("students", len(students)),
		zap.Int("failed", report.Failed()),
		zap.Duration("took", time.Since(started)))
	return report, nil
}
