package models

import "time"

// ResultFormula is a named, stored aggregation formula. Formula holds a
// JSON document understood by the engine (see engine.ParseFormula); it is
// configuration, not executable code. An unknown mode inside the document
// is only rejected when the formula is actually used, so formulas for
// not-yet-implemented modes can be stored ahead of time.
type ResultFormula struct {
	ID          int64
	Name        string
	Description string
	Formula     string
	IsActive    bool
	CreatedBy   *int64
	CreatedAt   time.Time
}
