package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kibuli/schooladmin/internal/engine"
	"github.com/kibuli/schooladmin/internal/models"
)

// FormulaStore keeps named aggregation formulas. The stored document is
// only shape-checked on write; whether its mode is implemented is decided
// when a computation references it, so formulas for future modes can be
// stored ahead of time.
type FormulaStore struct {
	DB *sql.DB
}

func (s *FormulaStore) Create(ctx context.Context, f models.ResultFormula) (*models.ResultFormula, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	if _, err := engine.ParseFormula(f.Name, f.Formula); err != nil {
		// Bad JSON or a missing mode is rejected up front; an unknown mode
		// is not (see ConfigurationError in the engine).
		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, &engine.ValidationError{Field: "formula", Msg: cfgErr.Msg}
		}
		return nil, err
	}

	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO result_formulas (name, description, formula, is_active, created_by)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING id, created_at`,
		f.Name, f.Description, f.Formula, f.CreatedBy,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &engine.ConflictError{Msg: fmt.Sprintf("formula %q already exists", f.Name)}
		}
		return nil, fmt.Errorf("create formula: %w", err)
	}
	f.IsActive = true
	return &f, nil
}

// FormulaByName returns nil without error when no such formula exists; the
// composer turns that into a ConfigurationError with the formula's name.
func (s *FormulaStore) FormulaByName(ctx context.Context, name string) (*models.ResultFormula, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	var f models.ResultFormula
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, description, formula, is_active, created_by, created_at
		FROM result_formulas
		WHERE name = $1 AND is_active`, name,
	).Scan(&f.ID, &f.Name, &f.Description, &f.Formula, &f.IsActive, &f.CreatedBy, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("formula by name: %w", err)
	}
	return &f, nil
}

func (s *FormulaStore) List(ctx context.Context) ([]models.ResultFormula, error) {
	ctx, cancel := dbTimeout(ctx)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, description, formula, is_active, created_by, created_at
		FROM result_formulas
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list formulas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ResultFormula
	for rows.Next() {
		var f models.ResultFormula
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.Formula,
			&f.IsActive, &f.CreatedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
