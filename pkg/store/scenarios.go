package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
)

var ErrScenarioNotFound = errors.New("scenario not found")

const scenarioTable = "_timewarp_scenarios"

func (s *Store) migrateScenarios() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS ` + scenarioTable + ` (
		name        TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		data        TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);`)
	return err
}

// SaveScenario stores sc under its name, replacing an earlier save.
func (s *Store) SaveScenario(ctx context.Context, sc model.Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("%w: scenario without name", ErrInvalidArgument)
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return retryOp(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO `+scenarioTable+` (name, description, data, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				data = excluded.data,
				created_at = excluded.created_at`,
			sc.Name, sc.Description, string(data), sc.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// LoadScenario returns the scenario saved under name.
func (s *Store) LoadScenario(ctx context.Context, name string) (model.Scenario, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM `+scenarioTable+` WHERE name = ?`, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Scenario{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	if err != nil {
		return model.Scenario{}, err
	}
	var sc model.Scenario
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return model.Scenario{}, fmt.Errorf("decode scenario %s: %w", name, err)
	}
	return sc, nil
}

// ListScenarios returns the saved scenarios, newest first.
func (s *Store) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, data FROM `+scenarioTable+` ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := []model.Scenario{}
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		var sc model.Scenario
		if err := json.Unmarshal([]byte(data), &sc); err != nil {
			return nil, fmt.Errorf("decode scenario %s: %w", name, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

// DeleteScenario removes a saved scenario.
func (s *Store) DeleteScenario(ctx context.Context, name string) error {
	var res sql.Result
	err := retryOp(ctx, s.retry, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, `DELETE FROM `+scenarioTable+` WHERE name = ?`, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	return nil
}
