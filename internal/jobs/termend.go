package jobs

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kibuli/schooladmin/internal/db"
	"github.com/kibuli/schooladmin/internal/engine"
	"github.com/kibuli/schooladmin/internal/observability"
)

// Term boundaries of the Ugandan three-term school calendar.
func CurrentAcademicYear(t time.Time) string { return strconv.Itoa(t.Year()) }

func CurrentTerm(t time.Time) string {
	switch {
	case t.Month() <= time.April:
		return "Term 1"
	case t.Month() <= time.August:
		return "Term 2"
	default:
		return "Term 3"
	}
}

// TermEnd recomputes results for every active class of the current term.
// It is the external scheduler the engine itself deliberately does not
// have; a per-class failure is reported and the walk continues.
type TermEnd struct {
	Roster   *db.RosterStore
	Composer *engine.Composer
	Workers  int
	Log      *zap.Logger
}

func (j *TermEnd) Run(ctx context.Context) error {
	now := time.Now()
	year, term := CurrentAcademicYear(now), CurrentTerm(now)

	classes, err := j.Roster.ActiveClasses(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, classID := range classes {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := j.Composer.ComputeClass(ctx, classID, year, term, engine.ClassComputeOptions{
			ComputeOptions: engine.ComputeOptions{Recompute: true},
			Workers:        j.Workers,
		})
		if err != nil {
			j.Log.Error("term-end class run failed",
				zap.Int64("class_id", classID), zap.Error(err))
			observability.CaptureErr(err)
			lastErr = err
			continue
		}
		if n := report.Failed(); n > 0 {
			j.Log.Warn("term-end class run had per-student failures",
				zap.Int64("class_id", classID), zap.Int("failed", n))
		}
	}
	return lastErr
}
