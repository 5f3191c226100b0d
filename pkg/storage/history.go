package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
)

// HistoryQuery selects parameter changes
type HistoryQuery struct {
	Limit int
	Key   params.Key
	Since *time.Time
}

// Record appends a change to the history. It satisfies the generator's
// journal hook.
func (s *Store) Record(change params.Change) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if change.Time.IsZero() {
		change.Time = time.Now()
	}

	query := `
		INSERT INTO param_history (timestamp, key, value, source, error)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, change.Time, string(change.Key), change.Value, change.Source, change.Error); err != nil {
		return fmt.Errorf("failed to insert change: %w", err)
	}

	if err := s.trimHistory(tx); err != nil {
		logging.Warnf("storage", "failed to trim history: %v", err)
	}

	return tx.Commit()
}

// trimHistory removes the oldest entries beyond the maximum
func (s *Store) trimHistory(tx *sql.Tx) error {
	if s.maxHistory <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM param_history").Scan(&count); err != nil {
		return err
	}
	if count <= s.maxHistory {
		return nil
	}

	query := `
		DELETE FROM param_history
		WHERE id IN (
			SELECT id FROM param_history
			ORDER BY id ASC
			LIMIT ?
		)
	`
	_, err := tx.Exec(query, count-s.maxHistory)
	return err
}

// History returns the most recent changes, newest first
func (s *Store) History(limit int) ([]params.Change, error) {
	return s.QueryHistory(HistoryQuery{Limit: limit})
}

// QueryHistory returns changes matching query, newest first
func (s *Store) QueryHistory(query HistoryQuery) ([]params.Change, error) {
	var args []interface{}
	sqlQuery := `
		SELECT id, timestamp, key, value, source, error
		FROM param_history
		WHERE 1=1
	`

	if query.Key != "" {
		sqlQuery += " AND key = ?"
		args = append(args, string(query.Key))
	}
	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, *query.Since)
	}

	sqlQuery += " ORDER BY id DESC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var changes []params.Change
	for rows.Next() {
		var c params.Change
		var key string
		if err := rows.Scan(&c.ID, &c.Time, &key, &c.Value, &c.Source, &c.Error); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Key = params.Key(key)
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// HistoryCount returns the number of stored changes
func (s *Store) HistoryCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM param_history").Scan(&count)
	return count, err
}

// ClearHistory removes every stored change
func (s *Store) ClearHistory() error {
	_, err := s.db.Exec("DELETE FROM param_history")
	return err
}
