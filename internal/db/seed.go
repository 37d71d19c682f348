package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Seed inserts reference data for local bring-up: the default subjects and
// the built-in formula documents. Safe to run on every start.
func Seed(ctx context.Context, database *sql.DB) error {
	subjects := []struct{ name, code string }{
		{"Mathematics", "MTC"},
		{"English", "ENG"},
		{"Physics", "PHY"},
		{"Chemistry", "CHE"},
		{"Biology", "BIO"},
		{"History", "HIS"},
		{"Geography", "GEO"},
		{"Religious Education", "CRE"},
	}
	for _, s := range subjects {
		if _, err := database.ExecContext(ctx, `
			INSERT INTO subjects (name, code) VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING`, s.name, s.code); err != nil {
			return fmt.Errorf("seed subject %s: %w", s.name, err)
		}
	}

	formulas := []struct{ name, description, doc string }{
		{"standard", "Weighted average of normalized test percentages",
			`{"mode":"weighted_average"}`},
		{"plain-average", "Unweighted mean of normalized test percentages",
			`{"mode":"simple_average"}`},
		{"best-two", "Average of the two best test percentages",
			`{"mode":"highest_of","count":2}`},
		{"exam-heavy", "End-of-term exams weigh double",
			`{"mode":"custom_weights_by_test_type","weights":{"midterm":1,"endterm":2,"assignment":0.5}}`},
	}
	for _, f := range formulas {
		if _, err := database.ExecContext(ctx, `
			INSERT INTO result_formulas (name, description, formula)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO NOTHING`, f.name, f.description, f.doc); err != nil {
			return fmt.Errorf("seed formula %s: %w", f.name, err)
		}
	}
	return nil
}
