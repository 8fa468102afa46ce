// Package ops implements the operator command surface: handing out
// template items, admin removal, listing and permission management.
// Presentation (chat output, argument parsing) stays with the host.
package ops

import (
	"errors"
	"fmt"

	"hopperfilterx/internal/hopper"
	"hopperfilterx/internal/perm"
)

// Store is the subset of record storage the command surface reads.
type Store interface {
	GetByID(id string) (hopper.Record, error)
	ListByOwner(owner string) ([]hopper.Record, error)
}

// Remover evicts a record from the live world state and storage.
type Remover interface {
	Remove(id, owner string, loc hopper.Location, placed bool)
}

var ErrBadCount = errors.New("count must be between 1 and 64")

type Service struct {
	store    Store
	perms    *perm.Model
	remover  Remover
	itemKind string
}

func NewService(store Store, perms *perm.Model, remover Remover, itemKind string) *Service {
	return &Service{store: store, perms: perms, remover: remover, itemKind: itemKind}
}

// Give mints count untagged template items. They acquire an identity
// and owner only when placed.
func (s *Service) Give(count int) (hopper.ItemStack, error) {
	if count < 1 || count > 64 {
		return hopper.ItemStack{}, ErrBadCount
	}
	return hopper.ItemStack{Kind: s.itemKind, Count: count}, nil
}

// GiveExisting reissues the item form of a stored hopper, keeping its
// identity and owner.
func (s *Service) GiveExisting(id string) (hopper.TaggedItem, error) {
	rec, err := s.store.GetByID(id)
	if err != nil {
		return hopper.TaggedItem{}, err
	}
	if rec.Placed {
		return hopper.TaggedItem{}, fmt.Errorf("hopper %s is placed in the world", id)
	}
	return hopper.TaggedItem{Kind: s.itemKind, ID: rec.ID, Owner: rec.Owner}, nil
}

// Remove deletes a hopper by id, evicting it from the live registry
// when it is placed. Returns hopper.ErrNotFound for unknown ids.
func (s *Service) Remove(id string) (hopper.Record, error) {
	rec, err := s.store.GetByID(id)
	if err != nil {
		return hopper.Record{}, err
	}
	s.remover.Remove(rec.ID, rec.Owner, rec.Loc, rec.Placed)
	return rec, nil
}

// List returns the owner's hoppers, placed ones first.
func (s *Service) List(owner string) ([]hopper.Record, error) {
	return s.store.ListByOwner(owner)
}

// AddPermission grants grantee access to one of owner's hoppers, or to
// all of them when hopperID is empty.
func (s *Service) AddPermission(owner, grantee, hopperID string) (bool, error) {
	return s.perms.Grant(owner, grantee, hopperID)
}

// RemovePermission revokes a grant. Reports whether anything changed.
func (s *Service) RemovePermission(owner, grantee, hopperID string) (bool, error) {
	return s.perms.Revoke(owner, grantee, hopperID)
}

// PermittedPlayers lists who may interact with the hopper besides its
// owner, merging per-id and global grants.
func (s *Service) PermittedPlayers(owner, hopperID string) ([]string, error) {
	return s.perms.PermittedPlayers(owner, hopperID)
}
