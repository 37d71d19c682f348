package engine

import (
	"encoding/json"
	"fmt"
)

// Aggregation modes a stored formula may name. Formulas with modes outside
// this set can still be stored; they fail with a ConfigurationError when a
// computation actually references them.
const (
	ModeWeightedAverage         = "weighted_average"
	ModeSimpleAverage           = "simple_average"
	ModeHighestOf               = "highest_of"
	ModeCustomWeightsByTestType = "custom_weights_by_test_type"
)

// Formula is the parsed form of ResultFormula.Formula. It is a tagged
// variant: Mode selects the algorithm, the remaining fields carry
// mode-specific parameters.
type Formula struct {
	Mode string `json:"mode"`

	// highest_of: how many of the best normalized percentages to average.
	Count int `json:"count,omitempty"`

	// custom_weights_by_test_type: per-test-type weight overrides. Marks
	// whose test type is absent keep the weight recorded on the mark.
	Weights map[string]float64 `json:"weights,omitempty"`
}

// DefaultFormula is used when a computation names no formula.
var DefaultFormula = Formula{Mode: ModeWeightedAverage}

// ParseFormula decodes a stored formula document. Only the document shape
// is validated here; whether the mode is implemented is checked at
// computation time.
func ParseFormula(name, doc string) (Formula, error) {
	var f Formula
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return Formula{}, &ConfigurationError{Formula: name, Msg: fmt.Sprintf("bad formula document: %v", err)}
	}
	if f.Mode == "" {
		return Formula{}, &ConfigurationError{Formula: name, Msg: "formula document has no mode"}
	}
	return f, nil
}

func (f Formula) validateParams(name string) error {
	switch f.Mode {
	case ModeHighestOf:
		if f.Count < 1 {
			return &ConfigurationError{Formula: name, Msg: "highest_of requires count >= 1"}
		}
	case ModeCustomWeightsByTestType:
		for tt, w := range f.Weights {
			if w <= 0 {
				return &ConfigurationError{Formula: name,
					Msg: fmt.Sprintf("weight override for %q must be > 0", tt)}
			}
		}
	}
	return nil
}
