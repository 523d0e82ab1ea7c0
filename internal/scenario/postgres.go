package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists presets in PostgreSQL. Builtin scenarios are
// inserted once and then left alone so edits survive restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.seedBuiltins(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS scenarios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		caller_name TEXT NOT NULL,
		situation TEXT NOT NULL,
		address TEXT NOT NULL,
		emotional_state TEXT NOT NULL,
		cooperation INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init scenarios schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) seedBuiltins(ctx context.Context) error {
	for _, sc := range BuiltinScenarios() {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO scenarios (id, name, caller_name, situation, address, emotional_state, cooperation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			sc.ID, sc.Name, sc.CallerName, sc.Situation, sc.Address, sc.EmotionalState, sc.Cooperation,
		)
		if err != nil {
			return fmt.Errorf("seed scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sc Scenario) (Scenario, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sc.CreatedAt = now
	sc.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenarios (id, name, caller_name, situation, address, emotional_state, cooperation, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sc.ID, sc.Name, sc.CallerName, sc.Situation, sc.Address, sc.EmotionalState, sc.Cooperation, sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		return Scenario{}, fmt.Errorf("create scenario: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Scenario, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, caller_name, situation, address, emotional_state, cooperation, created_at, updated_at
		 FROM scenarios WHERE id=$1`, id)

	var sc Scenario
	err := row.Scan(&sc.ID, &sc.Name, &sc.CallerName, &sc.Situation, &sc.Address, &sc.EmotionalState, &sc.Cooperation, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Scenario{}, ErrNotFound
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Scenario, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, caller_name, situation, address, emotional_state, cooperation, created_at, updated_at
		 FROM scenarios ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var items []Scenario
	for rows.Next() {
		var sc Scenario
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CallerName, &sc.Situation, &sc.Address, &sc.EmotionalState, &sc.Cooperation, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scenario row: %w", err)
		}
		items = append(items, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Update(ctx context.Context, sc Scenario) (Scenario, error) {
	sc.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE scenarios
		 SET name=$2, caller_name=$3, situation=$4, address=$5, emotional_state=$6, cooperation=$7, updated_at=$8
		 WHERE id=$1`,
		sc.ID, sc.Name, sc.CallerName, sc.Situation, sc.Address, sc.EmotionalState, sc.Cooperation, sc.UpdatedAt,
	)
	if err != nil {
		return Scenario{}, fmt.Errorf("update scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Scenario{}, ErrNotFound
	}
	return s.Get(ctx, sc.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scenarios WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
