// Package itemcodec owns the opaque serialized form of item-template lists
// stored in the database blob columns. The store treats the blobs as opaque;
// only this package knows their shape.
package itemcodec

import (
	"encoding/json"
	"fmt"

	"hopperfilterx/internal/hopper"
)

// Blob layout version. Bump together with a schema note in
// schemas/items.schema.json.
const version = 1

type filterBlob struct {
	V     int                `json:"v"`
	Items []hopper.ItemStack `json:"items"`
}

type stashBlob struct {
	V       int                 `json:"v"`
	Entries []hopper.StashEntry `json:"entries"`
}

// EncodeFilter serializes a filter template list.
func EncodeFilter(items []hopper.ItemStack) ([]byte, error) {
	b, err := json.Marshal(filterBlob{V: version, Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode filter items: %w", err)
	}
	return b, nil
}

// DecodeFilter parses a filter blob. Empty input decodes to an empty filter;
// malformed input is an error the caller may downgrade to allow-all.
func DecodeFilter(data []byte) ([]hopper.ItemStack, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blob filterBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode filter items: %w", err)
	}
	if blob.V != version {
		return nil, fmt.Errorf("decode filter items: unsupported blob version %d", blob.V)
	}
	return blob.Items, nil
}

// EncodeStash serializes a creative-stash entry list.
func EncodeStash(entries []hopper.StashEntry) ([]byte, error) {
	b, err := json.Marshal(stashBlob{V: version, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode stash entries: %w", err)
	}
	return b, nil
}

// DecodeStash parses a stash blob; empty input decodes to an empty list.
func DecodeStash(data []byte) ([]hopper.StashEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blob stashBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode stash entries: %w", err)
	}
	if blob.V != version {
		return nil, fmt.Errorf("decode stash entries: unsupported blob version %d", blob.V)
	}
	return blob.Entries, nil
}
