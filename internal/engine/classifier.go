package engine

import "go.uber.org/zap"

// GradeBand maps an inclusive lower threshold to a letter. A percentage
// exactly on the threshold takes the band's letter.
type GradeBand struct {
	Threshold float64
	Letter    string
}

// GradeScale is an ordered list of bands, highest threshold first. The last
// band is the floor and should carry threshold 0.
type GradeScale []GradeBand

// DefaultGradeScale is the school-wide letter scale. Institution-specific
// scales can be passed to NewClassifier without touching the aggregator.
var DefaultGradeScale = GradeScale{
	{Threshold: 90, Letter: "A"},
	{Threshold: 80, Letter: "B"},
	{Threshold: 70, Letter: "C"},
	{Threshold: 60, Letter: "D"},
	{Threshold: 0, Letter: "F"},
}

type Classifier struct {
	scale GradeScale
	log   *zap.Logger
}

func NewClassifier(scale GradeScale, log *zap.Logger) *Classifier {
	if len(scale) == 0 {
		scale = DefaultGradeScale
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{scale: scale, log: log}
}

// Classify maps a composite percentage to a letter grade. Percentages
// outside [0,100] are clamped with a warning; they indicate a bug upstream
// but must never fail a result computation.
func (c *Classifier) Classify(pct float64) string {
	if pct < 0 || pct > 100 {
		c.log.Warn("percentage out of range, clamping",
			zap.Float64("percentage", pct))
		if pct < 0 {
			pct = 0
		} else {
			pct = 100
		}
	}
	for _, b := range c.scale {
		if pct >= b.Threshold {
			return b.Letter
		}
	}
	// Scale without a zero-threshold floor: fall back to the lowest band.
	return c.scale[len(c.scale)-1].Letter
}
