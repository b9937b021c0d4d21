package balance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a ScoreStore backed by a sqlite database file.
// Each agent score is one row keyed by run, generation and population index.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store for the database at path. Call Init before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveGeneration(ctx context.Context, runID string, generation int, scores []float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE run_id = ? AND generation = ?`, runID, generation); err != nil {
		return fmt.Errorf("clear generation %d: %w", generation, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scores (run_id, generation, agent_index, score)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, score := range scores {
		if _, err := stmt.ExecContext(ctx, runID, generation, i, score); err != nil {
			return fmt.Errorf("insert score %d of generation %d: %w", i, generation, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadHistory(ctx context.Context, runID string) ([][]float64, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, score FROM scores
		WHERE run_id = ?
		ORDER BY generation, agent_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history [][]float64
	current := -1
	for rows.Next() {
		var generation int
		var score float64
		if err := rows.Scan(&generation, &score); err != nil {
			return nil, err
		}
		if generation != current {
			history = append(history, nil)
			current = generation
		}
		history[len(history)-1] = append(history[len(history)-1], score)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT run_id FROM scores ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errStoreNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scores (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			agent_index INTEGER NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (run_id, generation, agent_index)
		);
	`)
	return err
}
