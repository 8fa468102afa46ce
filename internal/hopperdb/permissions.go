package hopperdb

import (
	"database/sql"
	"errors"
)

// Permission rows: hopper_uuid NULL is a global grant covering all of the
// owner's hoppers; a concrete uuid grants that one hopper only.

// Grant inserts a permission row. Returns false when the grant already
// existed (insert is idempotent). hopperID == "" means a global grant.
func (d *DB) Grant(owner, permitted, hopperID string) (bool, error) {
	if hopperID == "" {
		// SQLite treats NULLs in the composite key as distinct, so the
		// IGNORE clause alone would not deduplicate global grants.
		exists, err := d.HasGlobalPermission(owner, permitted)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	res, err := d.db.Exec(
		`INSERT OR IGNORE INTO hopper_permissions(owner, permitted, hopper_uuid) VALUES(?, ?, ?)`,
		owner, permitted, nullable(hopperID),
	)
	if err != nil {
		return false, storageErr("grant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("grant", err)
	}
	return n > 0, nil
}

// Revoke removes a permission row. Returns false when no such grant existed.
func (d *DB) Revoke(owner, permitted, hopperID string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if hopperID == "" {
		res, err = d.db.Exec(
			`DELETE FROM hopper_permissions WHERE owner = ? AND permitted = ? AND hopper_uuid IS NULL`,
			owner, permitted,
		)
	} else {
		res, err = d.db.Exec(
			`DELETE FROM hopper_permissions WHERE owner = ? AND permitted = ? AND hopper_uuid = ?`,
			owner, permitted, hopperID,
		)
	}
	if err != nil {
		return false, storageErr("revoke", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("revoke", err)
	}
	return n > 0, nil
}

// HasPermission reports whether permitted may act on the owner's hopper:
// true on a global grant or a grant for this specific id.
func (d *DB) HasPermission(owner, permitted, hopperID string) (bool, error) {
	var one int
	switch err := d.db.QueryRow(
		`SELECT 1 FROM hopper_permissions WHERE owner = ? AND permitted = ? AND (hopper_uuid = ? OR hopper_uuid IS NULL) LIMIT 1`,
		owner, permitted, hopperID,
	).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storageErr("has_permission", err)
	}
	return true, nil
}

// HasGlobalPermission reports whether permitted holds a global grant from
// owner.
func (d *DB) HasGlobalPermission(owner, permitted string) (bool, error) {
	var one int
	switch err := d.db.QueryRow(
		`SELECT 1 FROM hopper_permissions WHERE owner = ? AND permitted = ? AND hopper_uuid IS NULL LIMIT 1`,
		owner, permitted,
	).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storageErr("has_global_permission", err)
	}
	return true, nil
}

// PermittedPlayers lists who may act on the owner's hopper, combining global
// grants and grants for this specific id.
func (d *DB) PermittedPlayers(owner, hopperID string) ([]string, error) {
	rows, err := d.db.Query(
		`SELECT permitted FROM hopper_permissions WHERE owner = ? AND (hopper_uuid = ? OR hopper_uuid IS NULL)`,
		owner, hopperID,
	)
	if err != nil {
		return nil, storageErr("permitted_players", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storageErr("permitted_players", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("permitted_players", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
