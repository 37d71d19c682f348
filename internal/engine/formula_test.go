package engine

import (
	"errors"
	"testing"
)

func TestParseFormula(t *testing.T) {
	f, err := ParseFormula("exam-heavy",
		`{"mode":"custom_weights_by_test_type","weights":{"endterm":2,"midterm":1}}`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Mode != ModeCustomWeightsByTestType {
		t.Fatalf("mode = %q", f.Mode)
	}
	if f.Weights["endterm"] != 2 {
		t.Fatalf("weights = %v", f.Weights)
	}
}

func TestParseFormula_BadDocument(t *testing.T) {
	var cfgErr *ConfigurationError
	if _, err := ParseFormula("broken", `{not json`); !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigurationError for bad JSON, got %v", err)
	}
	if _, err := ParseFormula("empty", `{}`); !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigurationError for missing mode, got %v", err)
	}
}

func TestParseFormula_UnknownModeStoresFine(t *testing.T) {
	// Forward-compatible storage: unknown modes parse, they only fail when
	// a computation dispatches on them.
	f, err := ParseFormula("future", `{"mode":"bayesian_blend"}`)
	if err != nil {
		t.Fatal(err)
	}
	if f.Mode != "bayesian_blend" {
		t.Fatalf("mode = %q", f.Mode)
	}
}

func TestFormulaParamValidation(t *testing.T) {
	if _, err := Aggregate(nil, Formula{Mode: ModeHighestOf}); err == nil {
		t.Fatal("highest_of without count must fail")
	}
	f := Formula{Mode: ModeCustomWeightsByTestType, Weights: map[string]float64{"midterm": -1}}
	if _, err := Aggregate(nil, f); err == nil {
		t.Fatal("negative weight override must fail")
	}
}
