// Package store is the SQLite-backed virtual data store that mutation rules
// act on.
//
// Entities are declared with CreateEntity, which creates a table and records
// its schema in a catalog table. The catalog doubles as the entity registry.
// Query and Execute take parameterized statements and return plain records,
// so callers never see database/sql types.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daviddao/timewarp/pkg/model"

	_ "modernc.org/sqlite"
)

var (
	ErrEntityExists    = errors.New("entity already exists")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrInvalidSchema   = errors.New("invalid entity schema")
	ErrInvalidArgument = errors.New("invalid argument")
)

const catalogTable = "_timewarp_entities"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db    *sql.DB
	retry retryConfig

	mu       sync.RWMutex
	entities map[string]EntitySchema
}

// New opens (or creates) the SQLite database, initializes the catalog and
// loads the registered entities.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{
		db:       db,
		retry:    defaultRetryConfig,
		entities: make(map[string]EntitySchema),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadCatalog(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS ` + catalogTable + ` (
		name       TEXT PRIMARY KEY,
		table_name TEXT NOT NULL UNIQUE,
		schema     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`)
	if err != nil {
		return err
	}
	return s.migrateScenarios()
}

func (s *Store) loadCatalog() error {
	rows, err := s.db.Query(`SELECT name, schema FROM ` + catalogTable + ` ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return err
		}
		var es EntitySchema
		if err := json.Unmarshal([]byte(raw), &es); err != nil {
			return fmt.Errorf("decode schema of %s: %w", name, err)
		}
		s.entities[name] = es
	}
	return rows.Err()
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// CreateEntity creates the entity's table and registers its schema.
func (s *Store) CreateEntity(ctx context.Context, es EntitySchema) error {
	es = es.normalize()
	if err := es.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[es.Entity]; ok {
		return fmt.Errorf("%w: %s", ErrEntityExists, es.Entity)
	}

	raw, err := json.Marshal(es)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	err = retryOp(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, es.createTableSQL()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+catalogTable+` (name, table_name, schema, created_at) VALUES (?, ?, ?, ?)`,
			es.Entity, es.TableName(), string(raw), now,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("create entity %s: %w", es.Entity, err)
	}
	s.entities[es.Entity] = es
	return nil
}

// Entity returns the registered entity called name.
func (s *Store) Entity(name string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es, ok := s.entities[name]
	if !ok {
		return nil, false
	}
	return es, true
}

// Names returns the registered entity names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.entities))
	for n := range s.entities {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Schemas returns every registered schema ordered by entity name.
func (s *Store) Schemas() []EntitySchema {
	names := s.Names()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EntitySchema, 0, len(names))
	for _, n := range names {
		out = append(out, s.entities[n])
	}
	return out
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Insert adds rec to the named entity's table. Keys must be declared fields.
func (s *Store) Insert(ctx context.Context, entity string, rec model.Record) (model.ExecResult, error) {
	s.mu.RLock()
	es, ok := s.entities[entity]
	s.mu.RUnlock()
	if !ok {
		return model.ExecResult{}, fmt.Errorf("%w: %s", ErrEntityNotFound, entity)
	}
	if len(rec) == 0 {
		return model.ExecResult{}, fmt.Errorf("%w: empty record", ErrInvalidArgument)
	}

	cols := make([]string, 0, len(rec))
	for k := range rec {
		if !es.hasField(k) {
			return model.ExecResult{}, fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, entity, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	params := make([]any, len(cols))
	for i, c := range cols {
		params[i] = rec[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		es.TableName(), strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return s.Execute(ctx, stmt, params)
}

// Query runs a parameterized read statement and returns each row as a
// record keyed by column name.
func (s *Store) Query(ctx context.Context, stmt string, params []any) ([]model.Record, error) {
	args, err := bindParams(params)
	if err != nil {
		return nil, err
	}

	var records []model.Record
	err = retryOp(ctx, s.retry, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			rec := make(model.Record, len(cols))
			for i, c := range cols {
				rec[c] = fromColumn(vals[i])
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return records, nil
}

// Execute runs a parameterized write statement.
func (s *Store) Execute(ctx context.Context, stmt string, params []any) (model.ExecResult, error) {
	args, err := bindParams(params)
	if err != nil {
		return model.ExecResult{}, err
	}

	var res sql.Result
	err = retryOp(ctx, s.retry, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, stmt, args...)
		return err
	})
	if err != nil {
		return model.ExecResult{}, fmt.Errorf("execute: %w", err)
	}

	var out model.ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// bindParams converts record values into driver arguments. Nested objects
// and arrays are stored as JSON text.
func bindParams(params []any) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, string, bool, []byte, time.Time,
			int, int8, int16, int32, int64,
			uint8, uint16, uint32,
			float32, float64:
			args[i] = v
		case json.Number:
			if n, err := v.Int64(); err == nil {
				args[i] = n
			} else if f, err := v.Float64(); err == nil {
				args[i] = f
			} else {
				return nil, fmt.Errorf("%w: parameter %d: %v", ErrInvalidArgument, i, err)
			}
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %d: %v", ErrInvalidArgument, i, err)
			}
			args[i] = string(b)
		}
	}
	return args, nil
}

func fromColumn(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
