package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dougsko/siggen/pkg/params"
)

// Preset is a named set of parameter values in their text form
type Preset struct {
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Values    map[string]string `json:"values"`
}

// Decode parses the stored values. Keys no longer declared are an error.
func (p *Preset) Decode() (map[params.Key]any, error) {
	out := make(map[params.Key]any, len(p.Values))
	for name, text := range p.Values {
		key, err := params.ParseKey(name)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
		v, err := params.ParseValue(key, text)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
		out[key] = v
	}
	return out, nil
}

// SavePreset stores the writable keys of values under name, replacing any
// preset of the same name
func (s *Store) SavePreset(name string, values map[params.Key]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("preset name cannot be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO presets (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.Exec(query, name); err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}

	var id int64
	if err := tx.QueryRow("SELECT id FROM presets WHERE name = ?", name).Scan(&id); err != nil {
		return fmt.Errorf("failed to get preset ID: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM preset_values WHERE preset_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear preset values: %w", err)
	}

	for key, v := range values {
		d, ok := params.Lookup(key)
		if !ok || d.ReadOnly() {
			continue
		}
		_, err := tx.Exec("INSERT INTO preset_values (preset_id, key, value) VALUES (?, ?, ?)",
			id, string(key), params.FormatValue(v))
		if err != nil {
			return fmt.Errorf("failed to insert preset value %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// LoadPreset returns the preset called name
func (s *Store) LoadPreset(name string) (*Preset, error) {
	var p Preset
	var id int64
	err := s.db.QueryRow("SELECT id, name, created_at, updated_at FROM presets WHERE name = ?", name).
		Scan(&id, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preset: %w", err)
	}

	values, err := s.presetValues(id)
	if err != nil {
		return nil, err
	}
	p.Values = values
	return &p, nil
}

func (s *Store) presetValues(id int64) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM preset_values WHERE preset_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query preset values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan preset value: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// ListPresets returns every preset sorted by name
func (s *Store) ListPresets() ([]Preset, error) {
	rows, err := s.db.Query("SELECT id, name, created_at, updated_at FROM presets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}

	type row struct {
		id int64
		p  Preset
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.p.Name, &r.p.CreatedAt, &r.p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	presets := make([]Preset, 0, len(found))
	for _, r := range found {
		values, err := s.presetValues(r.id)
		if err != nil {
			return nil, err
		}
		r.p.Values = values
		presets = append(presets, r.p)
	}
	return presets, nil
}

// PresetNames returns the sorted preset names
func (s *Store) PresetNames() ([]string, error) {
	presets, err := s.ListPresets()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names, nil
}

// DeletePreset removes the preset called name
func (s *Store) DeletePreset(name string) error {
	result, err := s.db.Exec("DELETE FROM presets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return nil
}
