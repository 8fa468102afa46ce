package hopper

// Store is the durable repository contract the coordinator writes through.
// Implemented in internal/hopperdb. Every method returns the storage error
// as-is; the coordinator decides what a failed write means.
type Store interface {
	// Insert creates a record with a fresh unique id, placed at loc.
	Insert(owner string, loc Location) (string, error)
	MarkPlaced(id string, loc Location) error
	MarkUnplaced(id string) error
	// Delete removes the record and cascades permission cleanup. Deleting a
	// missing id is a no-op.
	Delete(id string) error

	LoadAll() ([]Record, error)
	ExistsByID(id string) (bool, error)
	// OwnerOf returns ErrNotFound (wrapped) for a missing id.
	OwnerOf(id string) (string, error)

	SaveFilterItems(id string, items []ItemStack) error
	// LoadFilterItems returns an empty filter for absent or unparseable data.
	LoadFilterItems(id string) ([]ItemStack, error)

	// Stash operations use replace semantics; merging is the caller's job.
	SaveStash(player string, entries []StashEntry) error
	LoadStash(player string) ([]StashEntry, error)
	DeleteStash(player string) error
}

// PermissionChecker resolves whether a grantee may act on an owner's record.
// Implemented in internal/perm.
type PermissionChecker interface {
	Allowed(owner, grantee, id string) (bool, error)
}

// AuditEntry is one durable lifecycle transition, written off-thread by the
// audit sink.
type AuditEntry struct {
	TS      string `json:"ts"`
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"`
	Owner   string `json:"owner,omitempty"`
	World   string `json:"world,omitempty"`
	X       int    `json:"x,omitempty"`
	Y       int    `json:"y,omitempty"`
	Z       int    `json:"z,omitempty"`
	Outcome string `json:"outcome"`
}

// AuditSink receives lifecycle audit entries. May be nil on the coordinator;
// implementations must be safe for concurrent use.
type AuditSink interface {
	WriteLifecycle(AuditEntry) error
}
