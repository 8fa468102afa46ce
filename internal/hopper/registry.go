package hopper

import "sync"

// keyCacheCap bounds the location→chunk-key cache; above this the cache is
// reset wholesale rather than evicted piecemeal.
const keyCacheCap = 500

// Registry is the in-memory spatial index over placed hopper records: an
// exact location lookup plus a per-chunk set for bulk operations. It is a
// pure cache: the coordinator decides what is true, the registry only
// remembers it. Both execution contexts read it, so every table carries its
// own lock; lookups never touch the key-cache lock, so Compact cannot block
// them.
type Registry struct {
	worlds *worldKeys

	mu      sync.RWMutex
	byLoc   map[Location]*Record
	byChunk map[ChunkKey]map[*Record]struct{}

	cacheMu  sync.Mutex
	keyCache map[Location]ChunkKey
}

func NewRegistry() *Registry {
	return &Registry{
		worlds:   newWorldKeys(),
		byLoc:    map[Location]*Record{},
		byChunk:  map[ChunkKey]map[*Record]struct{}{},
		keyCache: map[Location]ChunkKey{},
	}
}

// Register inserts a placed record into both tables. The record must be
// placed at a non-empty location, and the location must be free: callers
// unregister first when re-placing. Registering over an occupied location is
// an invariant violation, not something to paper over.
func (r *Registry) Register(rec *Record) error {
	if rec == nil {
		return invariant("register: nil record")
	}
	if !rec.Placed || rec.Loc.Zero() {
		return invariant("register %s: record not placed or missing world", rec.ID)
	}
	key := r.chunkKey(rec.Loc)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byLoc[rec.Loc]; ok {
		return invariant("register %s: location %s already holds %s", rec.ID, rec.Loc, prev.ID)
	}
	r.byLoc[rec.Loc] = rec
	set := r.byChunk[key]
	if set == nil {
		set = map[*Record]struct{}{}
		r.byChunk[key] = set
	}
	set[rec] = struct{}{}
	return nil
}

// Unregister removes whatever record occupies the location and returns it.
// Empty chunk sets are dropped so the index does not accumulate dead keys.
func (r *Registry) Unregister(loc Location) (*Record, bool) {
	key := r.chunkKey(loc)

	r.mu.Lock()
	rec, ok := r.byLoc[loc]
	if ok {
		delete(r.byLoc, loc)
		if set := r.byChunk[key]; set != nil {
			delete(set, rec)
			if len(set) == 0 {
				delete(r.byChunk, key)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.cacheMu.Lock()
		delete(r.keyCache, loc)
		r.cacheMu.Unlock()
	}
	return rec, ok
}

// Lookup returns the record placed at the location, if any.
func (r *Registry) Lookup(loc Location) (*Record, bool) {
	r.mu.RLock()
	rec, ok := r.byLoc[loc]
	r.mu.RUnlock()
	return rec, ok
}

func (r *Registry) Contains(loc Location) bool {
	_, ok := r.Lookup(loc)
	return ok
}

// InChunk returns the records indexed under the chunk containing loc. Used
// only for bulk/maintenance work; order is unspecified.
func (r *Registry) InChunk(loc Location) []*Record {
	key := r.chunkKey(loc)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byChunk[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Record, 0, len(set))
	for rec := range set {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of placed records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLoc)
}

// Compact drops key-cache entries for locations that no longer hold a record
// and hard-resets the cache once it outgrows its capacity. Lookups proceed
// concurrently; they never take the cache lock.
func (r *Registry) Compact() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	for loc := range r.keyCache {
		r.mu.RLock()
		_, live := r.byLoc[loc]
		r.mu.RUnlock()
		if !live {
			delete(r.keyCache, loc)
		}
	}
	if len(r.keyCache) > keyCacheCap {
		r.keyCache = map[Location]ChunkKey{}
	}
}

func (r *Registry) chunkKey(loc Location) ChunkKey {
	r.cacheMu.Lock()
	if key, ok := r.keyCache[loc]; ok {
		r.cacheMu.Unlock()
		return key
	}
	r.cacheMu.Unlock()

	key := r.worlds.key(loc)

	r.cacheMu.Lock()
	r.keyCache[loc] = key
	r.cacheMu.Unlock()
	return key
}
