// Package perm resolves ownership and access-control questions over the
// permission table. It holds no state of its own; it is a query/mutation
// layer with the boundary rules the storage schema cannot express.
package perm

import (
	"errors"

	"hopperfilterx/internal/hopper"
)

// Store is the slice of the database the permission model needs.
type Store interface {
	Grant(owner, permitted, hopperID string) (bool, error)
	Revoke(owner, permitted, hopperID string) (bool, error)
	HasPermission(owner, permitted, hopperID string) (bool, error)
	HasGlobalPermission(owner, permitted string) (bool, error)
	PermittedPlayers(owner, hopperID string) ([]string, error)
	ExistsByID(id string) (bool, error)
	OwnerOf(id string) (string, error)
	CountByOwner(owner string) (int, error)
}

var (
	// ErrSelfGrant: owners always have access; a self-grant is rejected
	// before it reaches storage.
	ErrSelfGrant = errors.New("cannot grant permission to yourself")
	// ErrNoHoppers: permission bookkeeping only exists for owners that own
	// at least one record.
	ErrNoHoppers = errors.New("owner has no hoppers")
)

type Model struct {
	store Store
}

func New(store Store) *Model {
	return &Model{store: store}
}

// Allowed reports whether grantee may act on the owner's hopper id: the
// owner always may; otherwise a global grant or a grant for this specific id
// is required.
func (m *Model) Allowed(owner, grantee, id string) (bool, error) {
	if grantee == owner {
		return true, nil
	}
	return m.store.HasPermission(owner, grantee, id)
}

// Grant adds a grant from owner to grantee, global when id is empty.
// Returns false when the grant already existed.
func (m *Model) Grant(owner, grantee, id string) (bool, error) {
	if err := m.checkBoundary(owner, grantee, id); err != nil {
		return false, err
	}
	return m.store.Grant(owner, grantee, id)
}

// Revoke removes a grant; false when it did not exist. The same boundary
// rules as Grant apply: no self-revokes, and the acting owner must still own
// at least one record (delete cascades sweep their grants otherwise).
func (m *Model) Revoke(owner, grantee, id string) (bool, error) {
	if owner == grantee {
		return false, ErrSelfGrant
	}
	n, err := m.store.CountByOwner(owner)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNoHoppers
	}
	return m.store.Revoke(owner, grantee, id)
}

// PermittedPlayers lists grantees able to act on the owner's hopper.
func (m *Model) PermittedPlayers(owner, id string) ([]string, error) {
	return m.store.PermittedPlayers(owner, id)
}

func (m *Model) checkBoundary(owner, grantee, id string) error {
	if owner == grantee {
		return ErrSelfGrant
	}
	if id != "" {
		recOwner, err := m.store.OwnerOf(id)
		if err != nil {
			return err
		}
		if recOwner != owner {
			return hopper.ErrPermissionDenied
		}
		return nil
	}
	n, err := m.store.CountByOwner(owner)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoHoppers
	}
	return nil
}
