package hopperdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hopperfilterx/internal/hopper"
	"hopperfilterx/internal/itemcodec"
)

// Insert creates a record with a fresh unique id, placed at loc.
func (d *DB) Insert(owner string, loc hopper.Location) (string, error) {
	if loc.Zero() {
		return "", storageErr("insert", errors.New("missing world in location"))
	}
	id := uuid.NewString()
	cx, cz := hopper.ChunkCoords(loc)
	_, err := d.db.Exec(
		`INSERT INTO filtered_hoppers(id, world, chunk_x, chunk_z, x, y, z, owner) VALUES(?,?,?,?,?,?,?,?)`,
		id, loc.World, cx, cz, loc.X, loc.Y, loc.Z, owner,
	)
	if err != nil {
		return "", storageErr("insert", err)
	}
	return id, nil
}

// MarkPlaced flags the record placed and moves it to loc.
func (d *DB) MarkPlaced(id string, loc hopper.Location) error {
	if loc.Zero() {
		return storageErr("mark_placed", errors.New("missing world in location"))
	}
	cx, cz := hopper.ChunkCoords(loc)
	res, err := d.db.Exec(
		`UPDATE filtered_hoppers SET is_placed = 1, world = ?, chunk_x = ?, chunk_z = ?, x = ?, y = ?, z = ? WHERE id = ?`,
		loc.World, cx, cz, loc.X, loc.Y, loc.Z, id,
	)
	if err != nil {
		return storageErr("mark_placed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		d.log.Printf("WARN mark_placed: no hopper with id %s", id)
	}
	return nil
}

// MarkUnplaced flags the record as existing only as an item.
func (d *DB) MarkUnplaced(id string) error {
	res, err := d.db.Exec(`UPDATE filtered_hoppers SET is_placed = 0 WHERE id = ?`, id)
	if err != nil {
		return storageErr("mark_unplaced", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		d.log.Printf("WARN mark_unplaced: no hopper with id %s", id)
	}
	return nil
}

// Delete removes the record and cascades permission cleanup as one logical
// unit: specific grants first, then the record, then, if the owner has no
// records left, their global grants. Each step is idempotent, so a missing
// id is a no-op and a partial crash cannot corrupt the invariants.
func (d *DB) Delete(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return storageErr("delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	switch err := tx.QueryRow(`SELECT owner FROM filtered_hoppers WHERE id = ?`, id).Scan(&owner); {
	case errors.Is(err, sql.ErrNoRows):
		// Already gone; still sweep any stray specific grants.
	case err != nil:
		return storageErr("delete", err)
	}

	if _, err := tx.Exec(`DELETE FROM hopper_permissions WHERE hopper_uuid = ?`, id); err != nil {
		return storageErr("delete", err)
	}
	if _, err := tx.Exec(`DELETE FROM filtered_hoppers WHERE id = ?`, id); err != nil {
		return storageErr("delete", err)
	}
	if owner != "" {
		var one int
		switch err := tx.QueryRow(`SELECT 1 FROM filtered_hoppers WHERE owner = ? LIMIT 1`, owner).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.Exec(`DELETE FROM hopper_permissions WHERE owner = ? AND hopper_uuid IS NULL`, owner); err != nil {
				return storageErr("delete", err)
			}
		case err != nil:
			return storageErr("delete", err)
		}
	}
	return storageErr("delete", tx.Commit())
}

// LoadAll scans every record, with filters decoded and cached on the struct.
// Used at startup to repopulate the registry and by listing queries.
func (d *DB) LoadAll() ([]hopper.Record, error) {
	rows, err := d.db.Query(
		`SELECT id, world, x, y, z, owner, COALESCE(is_placed, 1), items FROM filtered_hoppers`,
	)
	if err != nil {
		return nil, storageErr("load_all", err)
	}
	defer rows.Close()

	var out []hopper.Record
	for rows.Next() {
		var (
			rec    hopper.Record
			placed int
			items  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Loc.World, &rec.Loc.X, &rec.Loc.Y, &rec.Loc.Z, &rec.Owner, &placed, &items); err != nil {
			return nil, storageErr("load_all", err)
		}
		rec.Placed = placed == 1
		rec.Filter = d.decodeFilter(rec.ID, items)
		if !rec.Placed {
			rec.Loc = hopper.Location{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load_all", err)
	}
	return out, nil
}

// GetByID returns the full record for an id, or hopper.ErrNotFound.
func (d *DB) GetByID(id string) (hopper.Record, error) {
	var (
		rec    hopper.Record
		placed int
		items  []byte
	)
	row := d.db.QueryRow(
		`SELECT id, world, x, y, z, owner, COALESCE(is_placed, 1), items FROM filtered_hoppers WHERE id = ?`, id,
	)
	switch err := row.Scan(&rec.ID, &rec.Loc.World, &rec.Loc.X, &rec.Loc.Y, &rec.Loc.Z, &rec.Owner, &placed, &items); {
	case errors.Is(err, sql.ErrNoRows):
		return hopper.Record{}, fmt.Errorf("get %s: %w", id, hopper.ErrNotFound)
	case err != nil:
		return hopper.Record{}, storageErr("get_by_id", err)
	}
	rec.Placed = placed == 1
	rec.Filter = d.decodeFilter(rec.ID, items)
	if !rec.Placed {
		rec.Loc = hopper.Location{}
	}
	return rec, nil
}

// ListByOwner returns the owner's records, placed first, newest last.
func (d *DB) ListByOwner(owner string) ([]hopper.Record, error) {
	rows, err := d.db.Query(
		`SELECT id, world, x, y, z, owner, COALESCE(is_placed, 1), items FROM filtered_hoppers WHERE owner = ? ORDER BY is_placed DESC, rowid`,
		owner,
	)
	if err != nil {
		return nil, storageErr("list_by_owner", err)
	}
	defer rows.Close()

	var out []hopper.Record
	for rows.Next() {
		var (
			rec    hopper.Record
			placed int
			items  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Loc.World, &rec.Loc.X, &rec.Loc.Y, &rec.Loc.Z, &rec.Owner, &placed, &items); err != nil {
			return nil, storageErr("list_by_owner", err)
		}
		rec.Placed = placed == 1
		rec.Filter = d.decodeFilter(rec.ID, items)
		if !rec.Placed {
			rec.Loc = hopper.Location{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list_by_owner", err)
	}
	return out, nil
}

// ExistsByID reports whether the id is present.
func (d *DB) ExistsByID(id string) (bool, error) {
	var one int
	switch err := d.db.QueryRow(`SELECT 1 FROM filtered_hoppers WHERE id = ? LIMIT 1`, id).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storageErr("exists", err)
	}
	return true, nil
}

// OwnerOf returns the record's owner, or hopper.ErrNotFound.
func (d *DB) OwnerOf(id string) (string, error) {
	var owner string
	switch err := d.db.QueryRow(`SELECT owner FROM filtered_hoppers WHERE id = ? LIMIT 1`, id).Scan(&owner); {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("owner of %s: %w", id, hopper.ErrNotFound)
	case err != nil:
		return "", storageErr("owner_of", err)
	}
	return owner, nil
}

// SaveFilterItems persists the filter template list for a record.
func (d *DB) SaveFilterItems(id string, items []hopper.ItemStack) error {
	blob, err := itemcodec.EncodeFilter(items)
	if err != nil {
		return storageErr("save_filter", err)
	}
	if _, err := d.db.Exec(`UPDATE filtered_hoppers SET items = ? WHERE id = ?`, blob, id); err != nil {
		return storageErr("save_filter", err)
	}
	return nil
}

// LoadFilterItems returns the record's filter. Absent rows and unparseable
// blobs degrade to an empty (allow-all) filter rather than blocking the
// caller.
func (d *DB) LoadFilterItems(id string) ([]hopper.ItemStack, error) {
	var items []byte
	switch err := d.db.QueryRow(`SELECT items FROM filtered_hoppers WHERE id = ?`, id).Scan(&items); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, storageErr("load_filter", err)
	}
	return d.decodeFilter(id, items), nil
}

func (d *DB) decodeFilter(id string, blob []byte) []hopper.ItemStack {
	items, err := itemcodec.DecodeFilter(blob)
	if err != nil {
		d.log.Printf("WARN unparseable filter blob for %s, treating as allow-all: %v", id, err)
		return nil
	}
	return items
}

// CountByOwner returns how many records an owner has.
func (d *DB) CountByOwner(owner string) (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM filtered_hoppers WHERE owner = ?`, owner).Scan(&n); err != nil {
		return 0, storageErr("count_by_owner", err)
	}
	return n, nil
}
