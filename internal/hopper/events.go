package hopper

// Typed world-event payloads handed to the coordinator by the host's event
// layer. The coordinator never parses host objects; the boundary converts
// them to these values.

// PlaceEvent: a player placed a filtered-hopper item.
type PlaceEvent struct {
	Actor string
	Item  TaggedItem
	Loc   Location
	Mode  GameMode
}

// BreakEvent: a player broke the block at Loc.
type BreakEvent struct {
	Actor string
	Loc   Location
	Mode  GameMode
}

// BreakResult carries the item to drop into the world, if any.
type BreakResult struct {
	Drop *TaggedItem
}

// ExplosionEvent: an explosion destroyed the listed block locations.
type ExplosionEvent struct {
	Source ExplosionSource
	Blocks []Location
}

// ExplosionOutcome is the per-hopper result of an explosion: the location is
// always cleared; Drop is non-nil on a lucky draw.
type ExplosionOutcome struct {
	Loc  Location
	ID   string
	Drop *TaggedItem
}

// ItemGoneEvent: a carried item-entity holding a tagged hopper took lethal
// damage, combusted, or despawned. The destruction event fires before the
// entity is actually removed, so Alive is probed again one tick later before
// the record is deleted.
type ItemGoneEvent struct {
	Item  TaggedItem
	Cause string
	Alive func() bool
}

// ModeChangeEvent: a player switched game mode. Inventory is the player's
// current inventory contents, filtered to hopper items by the boundary.
type ModeChangeEvent struct {
	Player    string
	From      GameMode
	To        GameMode
	Inventory []TaggedItem
}

// SuspendResult tells the host what to do after a survival→creative switch:
// remove the stashed items from the live inventory and hand back one
// untagged template in exchange.
type SuspendResult struct {
	Stashed     []StashEntry
	Replacement *TaggedItem
}

// RestoreResult tells the host what to restore after a creative→survival
// switch. Discarded entries referenced records deleted while stashed.
type RestoreResult struct {
	Restored  []TaggedItem
	Discarded []StashEntry
}

// TransferEvent: an item is about to move between two containers. Source or
// Dest is nil when that side is not a block container (e.g. a minecart).
type TransferEvent struct {
	Source *Location
	Dest   *Location
	Item   ItemStack
}
