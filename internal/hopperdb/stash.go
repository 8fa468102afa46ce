package hopperdb

import (
	"database/sql"
	"errors"

	"hopperfilterx/internal/hopper"
	"hopperfilterx/internal/itemcodec"
)

// SaveStash replaces the player's creative stash wholesale. Merging with an
// existing stash is the caller's responsibility.
func (d *DB) SaveStash(player string, entries []hopper.StashEntry) error {
	blob, err := itemcodec.EncodeStash(entries)
	if err != nil {
		return storageErr("save_stash", err)
	}
	if _, err := d.db.Exec(
		`INSERT OR REPLACE INTO creative_hoppers(player_uuid, items) VALUES(?, ?)`,
		player, blob,
	); err != nil {
		return storageErr("save_stash", err)
	}
	return nil
}

// LoadStash returns the player's stashed hoppers; no row means an empty
// stash. An unparseable blob is logged and treated as empty.
func (d *DB) LoadStash(player string) ([]hopper.StashEntry, error) {
	var blob []byte
	switch err := d.db.QueryRow(`SELECT items FROM creative_hoppers WHERE player_uuid = ?`, player).Scan(&blob); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, storageErr("load_stash", err)
	}
	entries, err := itemcodec.DecodeStash(blob)
	if err != nil {
		d.log.Printf("WARN unparseable stash blob for %s, treating as empty: %v", player, err)
		return nil, nil
	}
	return entries, nil
}

// DeleteStash drops the player's stash row entirely.
func (d *DB) DeleteStash(player string) error {
	if _, err := d.db.Exec(`DELETE FROM creative_hoppers WHERE player_uuid = ?`, player); err != nil {
		return storageErr("delete_stash", err)
	}
	return nil
}
