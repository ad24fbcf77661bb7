package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Unit is display metadata from the organizational hierarchy: the
// unit occupying a floor, its equipment type, building, and
// branch. The hierarchy is maintained externally; this table is
// read-only to the core.
type Unit struct {
	Floor         int    `json:"floor"`
	Name          string `json:"name"`
	EquipmentType string `json:"equipment_type"`
	Building      string `json:"building"`
	Branch        string `json:"branch"`
}

// ListUnits returns all valid units, floor-ascending. Floor 0
// rows are invalid and excluded.
func (db *DB) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT floor, name, equipment_type, building, branch
		FROM units
		WHERE floor >= 1
		ORDER BY floor ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(
			&u.Floor, &u.Name, &u.EquipmentType,
			&u.Building, &u.Branch,
		); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating units: %w", err)
	}
	return units, nil
}

// InsertUnits seeds unit metadata, for fixtures and tests.
func (db *DB) InsertUnits(ctx context.Context, units []Unit) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO units
				(floor, name, equipment_type, building, branch)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing unit insert: %w", err)
		}
		defer stmt.Close()

		for _, u := range units {
			if _, err := stmt.ExecContext(ctx,
				u.Floor, u.Name, u.EquipmentType,
				u.Building, u.Branch,
			); err != nil {
				return fmt.Errorf("inserting unit: %w", err)
			}
		}
		return nil
	})
}
