package hopper

import "sort"

// FilterSlots is the fixed filter capacity of one hopper (a single chest row
// grid in the host UI).
const FilterSlots = 27

// ItemStack is a host-neutral item template: a kind plus whatever metadata the
// host attaches (display name, enchantment digest, ...). Count is carried for
// stash bookkeeping but never participates in matching.
type ItemStack struct {
	Kind  string            `json:"kind"`
	Meta  map[string]string `json:"meta,omitempty"`
	Count int               `json:"count,omitempty"`
}

// Similar reports whether two stacks are the same item type with the same
// metadata, regardless of stack size.
func (s ItemStack) Similar(o ItemStack) bool {
	if s.Kind == "" || s.Kind != o.Kind {
		return false
	}
	if len(s.Meta) != len(o.Meta) {
		return false
	}
	for k, v := range s.Meta {
		if o.Meta[k] != v {
			return false
		}
	}
	return true
}

// MetaKeys returns the stack's metadata keys in stable order, for digests and
// log lines.
func (s ItemStack) MetaKeys() []string {
	keys := make([]string, 0, len(s.Meta))
	for k := range s.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TaggedItem is the carryable manifestation of a hopper record: the item kind
// plus the persistent id/owner tags embedded in the item's metadata by the
// host boundary. ID == "" means an untagged template item (a fresh filtered
// hopper that has never been placed).
type TaggedItem struct {
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// Tagged reports whether the item refers to an existing record.
func (t TaggedItem) Tagged() bool { return t.ID != "" }

// StashEntry is one hopper parked in a player's creative stash: the identity
// tags plus a snapshot of its filter at suspension time.
type StashEntry struct {
	ID     string      `json:"id"`
	Owner  string      `json:"owner"`
	Filter []ItemStack `json:"filter,omitempty"`
}

// Item converts a stash entry back to its carryable form.
func (e StashEntry) Item(kind string) TaggedItem {
	return TaggedItem{Kind: kind, ID: e.ID, Owner: e.Owner}
}
