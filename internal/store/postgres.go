package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS larder_recipes (
	recipe_id    TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	cuisine      TEXT NOT NULL DEFAULT '',
	cooking_time INTEGER NOT NULL DEFAULT 0,
	calories     INTEGER NOT NULL DEFAULT 0,
	servings     INTEGER NOT NULL DEFAULT 0,
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	ingredients  JSONB,
	shelf_life   JSONB,
	instructions TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS larder_plans (
	plan_id    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	status     TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	profile    JSONB NOT NULL,
	recipe_ids TEXT[],
	model      JSONB,
	meals      JSONB,
	weight     DOUBLE PRECISION,
	nodes      INTEGER NOT NULL DEFAULT 0,
	exhausted  BOOLEAN NOT NULL DEFAULT false,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	solved_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS larder_plans_status_idx ON larder_plans (status, created_at DESC);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const recipeColumns = `recipe_id, name, cuisine, cooking_time, calories, servings,
	rating, ingredients, shelf_life, instructions`

func (s *PostgresStore) UpsertRecipe(ctx context.Context, r *mealplan.Recipe) error {
	ingredientsJSON, _ := json.Marshal(r.Ingredients)
	shelfLifeJSON, _ := json.Marshal(r.ShelfLife)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO larder_recipes (`+recipeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (recipe_id) DO UPDATE SET
			name = EXCLUDED.name, cuisine = EXCLUDED.cuisine,
			cooking_time = EXCLUDED.cooking_time, calories = EXCLUDED.calories,
			servings = EXCLUDED.servings, rating = EXCLUDED.rating,
			ingredients = EXCLUDED.ingredients, shelf_life = EXCLUDED.shelf_life,
			instructions = EXCLUDED.instructions, updated_at = now()`,
		r.ID, r.Name, r.Cuisine, r.CookingTime, r.Calories, r.Servings,
		r.Rating, ingredientsJSON, shelfLifeJSON, r.Instructions,
	)
	return err
}

func (s *PostgresStore) GetRecipe(ctx context.Context, id string) (*mealplan.Recipe, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recipeColumns+` FROM larder_recipes WHERE recipe_id = $1`, id)
	r, err := scanRecipe(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recipe %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRecipes(ctx context.Context, ids []string) ([]mealplan.Recipe, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recipeColumns+` FROM larder_recipes WHERE recipe_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]mealplan.Recipe, len(ids))
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]mealplan.Recipe, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("recipe %q: %w", id, ErrNotFound)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) ListRecipes(ctx context.Context, filter RecipeFilter) ([]mealplan.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM larder_recipes WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Cuisine != "" {
		n++
		query += fmt.Sprintf(" AND cuisine = $%d", n)
		args = append(args, filter.Cuisine)
	}
	if filter.MaxCookingTime > 0 {
		n++
		query += fmt.Sprintf(" AND cooking_time <= $%d", n)
		args = append(args, filter.MaxCookingTime)
	}

	query += " ORDER BY recipe_id ASC"

	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mealplan.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRecipe(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM larder_recipes WHERE recipe_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipe %q: %w", id, ErrNotFound)
	}
	return nil
}

func scanRecipe(row pgx.Row) (mealplan.Recipe, error) {
	var r mealplan.Recipe
	var ingredientsJSON, shelfLifeJSON []byte
	if err := row.Scan(
		&r.ID, &r.Name, &r.Cuisine, &r.CookingTime, &r.Calories, &r.Servings,
		&r.Rating, &ingredientsJSON, &shelfLifeJSON, &r.Instructions,
	); err != nil {
		return r, err
	}
	if ingredientsJSON != nil {
		_ = json.Unmarshal(ingredientsJSON, &r.Ingredients)
	}
	if shelfLifeJSON != nil {
		_ = json.Unmarshal(shelfLifeJSON, &r.ShelfLife)
	}
	return r, nil
}

const planColumns = `plan_id, status, source, profile, recipe_ids, model, meals,
	weight, nodes, exhausted, error, created_at, updated_at, solved_at`

func (s *PostgresStore) CreatePlan(ctx context.Context, p *Plan) error {
	profileJSON, _ := json.Marshal(p.Profile)
	modelJSON, _ := json.Marshal(p.Model)
	mealsJSON, _ := json.Marshal(p.Meals)

	return s.pool.QueryRow(ctx, `
		INSERT INTO larder_plans (status, source, profile, recipe_ids, model, meals,
			weight, nodes, exhausted, error, solved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING plan_id, created_at, updated_at`,
		p.Status, p.Source, profileJSON, p.RecipeIDs, modelJSON, mealsJSON,
		p.Weight, p.Nodes, p.Exhausted, p.Error, p.SolvedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM larder_plans WHERE plan_id = $1`, id)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, p *Plan) error {
	profileJSON, _ := json.Marshal(p.Profile)
	modelJSON, _ := json.Marshal(p.Model)
	mealsJSON, _ := json.Marshal(p.Meals)

	err := s.pool.QueryRow(ctx, `
		UPDATE larder_plans SET
			status = $2, source = $3, profile = $4, recipe_ids = $5,
			model = $6, meals = $7, weight = $8, nodes = $9,
			exhausted = $10, error = $11, solved_at = $12, updated_at = now()
		WHERE plan_id = $1
		RETURNING updated_at`,
		p.ID, p.Status, p.Source, profileJSON, p.RecipeIDs,
		modelJSON, mealsJSON, p.Weight, p.Nodes,
		p.Exhausted, p.Error, p.SolvedAt,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("plan %s: %w", p.ID, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) ListPlans(ctx context.Context, filter PlanFilter) ([]*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM larder_plans WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	if filter.Source != "" {
		n++
		query += fmt.Sprintf(" AND source = $%d", n)
		args = append(args, filter.Source)
	}

	query += " ORDER BY created_at DESC, plan_id ASC"

	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func scanPlan(row pgx.Row) (*Plan, error) {
	p := &Plan{}
	var profileJSON, modelJSON, mealsJSON []byte
	if err := row.Scan(
		&p.ID, &p.Status, &p.Source, &profileJSON, &p.RecipeIDs, &modelJSON, &mealsJSON,
		&p.Weight, &p.Nodes, &p.Exhausted, &p.Error, &p.CreatedAt, &p.UpdatedAt, &p.SolvedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(profileJSON, &p.Profile); err != nil {
		return nil, fmt.Errorf("decode profile of plan %s: %w", p.ID, err)
	}
	if modelJSON != nil {
		_ = json.Unmarshal(modelJSON, &p.Model)
	}
	if mealsJSON != nil {
		_ = json.Unmarshal(mealsJSON, &p.Meals)
	}
	return p, nil
}
