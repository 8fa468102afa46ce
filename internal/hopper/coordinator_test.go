package hopper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type storedRec struct {
	owner  string
	loc    Location
	placed bool
	filter []ItemStack
}

// memStore is an in-memory Store. The worker goroutine calls it while the
// test thread inspects it, so every method locks.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	records map[string]*storedRec
	stash   map[string][]StashEntry
	ops     []string

	// When non-nil, Insert/MarkPlaced block until the channel is closed.
	// Lets tests hold a placement write in flight.
	holdPlacement chan struct{}

	// When non-nil, OwnerOf fails with this error.
	ownerOfErr error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*storedRec{}, stash: map[string][]StashEntry{}}
}

func (s *memStore) wait() {
	s.mu.Lock()
	hold := s.holdPlacement
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
}

func (s *memStore) logOp(op string) { s.ops = append(s.ops, op) }

func (s *memStore) opLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *memStore) Insert(owner string, loc Location) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("h%d", s.nextID)
	s.records[id] = &storedRec{owner: owner, loc: loc, placed: true}
	s.logOp("insert " + id)
	return id, nil
}

func (s *memStore) MarkPlaced(id string, loc Location) error {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.records[id]; r != nil {
		r.placed = true
		r.loc = loc
	}
	s.logOp("mark_placed " + id)
	return nil
}

func (s *memStore) MarkUnplaced(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.records[id]; r != nil {
		r.placed = false
	}
	s.logOp("mark_unplaced " + id)
	return nil
}

func (s *memStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.logOp("delete " + id)
	return nil
}

func (s *memStore) LoadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for id, r := range s.records {
		rec := Record{ID: id, Owner: r.owner, Placed: r.placed, Filter: r.filter}
		if r.placed {
			rec.Loc = r.loc
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) ExistsByID(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *memStore) OwnerOf(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerOfErr != nil {
		return "", s.ownerOfErr
	}
	r, ok := s.records[id]
	if !ok {
		return "", ErrNotFound
	}
	return r.owner, nil
}

func (s *memStore) SaveFilterItems(id string, items []ItemStack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.records[id]; r != nil {
		r.filter = items
	}
	s.logOp("save_filter " + id)
	return nil
}

func (s *memStore) LoadFilterItems(id string) ([]ItemStack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.records[id]; r != nil {
		return r.filter, nil
	}
	return nil, nil
}

func (s *memStore) SaveStash(player string, entries []StashEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stash[player] = entries
	s.logOp("save_stash " + player)
	return nil
}

func (s *memStore) LoadStash(player string) ([]StashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stash[player], nil
}

func (s *memStore) DeleteStash(player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stash, player)
	s.logOp("delete_stash " + player)
	return nil
}

func (s *memStore) record(id string) (storedRec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return storedRec{}, false
	}
	return *r, true
}

// allowPerms grants keyed "owner|grantee" pairs; everything else is denied.
type allowPerms map[string]bool

func (p allowPerms) Allowed(owner, grantee, id string) (bool, error) {
	return p[owner+"|"+grantee], nil
}

func newTestCoordinator(t *testing.T, store *memStore, perms PermissionChecker) *Coordinator {
	t.Helper()
	if perms == nil {
		perms = allowPerms{}
	}
	c := NewCoordinator(CoordinatorConfig{
		Logger: log.New(io.Discard, "", 0),
	}, store, perms, NewRegistry(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// settle ticks the coordinator until cond holds or the deadline passes.
func settle(t *testing.T, c *Coordinator, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.Tick()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never settled")
}

func loc(x, y, z int) Location { return Location{World: "overworld", X: x, Y: y, Z: z} }

func placeFresh(t *testing.T, c *Coordinator, store *memStore, actor string, l Location) *Record {
	t.Helper()
	v := c.HandlePlace(PlaceEvent{Actor: actor, Item: TaggedItem{Kind: "HOPPER"}, Loc: l, Mode: ModeSurvival})
	if v.Denied() {
		t.Fatalf("place denied: %s", v.Reason)
	}
	var rec *Record
	settle(t, c, func() bool {
		r, ok := c.reg.Lookup(l)
		rec = r
		return ok
	})
	return rec
}

func TestPlaceThenSurvivalBreak(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(1, 64, 2))
	if rec.Owner != "alice" || !rec.Placed {
		t.Fatalf("rec = %+v", rec)
	}
	if sr, ok := store.record(rec.ID); !ok || !sr.placed {
		t.Fatalf("store record = %+v ok=%v", sr, ok)
	}

	res, v := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(1, 64, 2), Mode: ModeSurvival})
	if v.Denied() {
		t.Fatalf("break denied: %s", v.Reason)
	}
	if res.Drop == nil || res.Drop.ID != rec.ID || res.Drop.Owner != "alice" {
		t.Fatalf("drop = %+v", res.Drop)
	}
	if _, ok := c.reg.Lookup(loc(1, 64, 2)); ok {
		t.Fatalf("registry still holds broken hopper")
	}
	settle(t, c, func() bool {
		sr, ok := store.record(rec.ID)
		return ok && !sr.placed
	})
}

func TestCreativeBreakDeletesRecord(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(0, 70, 0))
	res, v := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(0, 70, 0), Mode: ModeCreative})
	if v.Denied() {
		t.Fatalf("break denied: %s", v.Reason)
	}
	if res.Drop != nil {
		t.Fatalf("creative break must not drop, got %+v", res.Drop)
	}
	settle(t, c, func() bool {
		_, ok := store.record(rec.ID)
		return !ok
	})
}

func TestBreakByStrangerDenied(t *testing.T) {
	store := newMemStore()
	perms := allowPerms{"alice|carol": true}
	c := newTestCoordinator(t, store, perms)

	placeFresh(t, c, store, "alice", loc(5, 64, 5))

	if _, v := c.HandleBreak(BreakEvent{Actor: "bob", Loc: loc(5, 64, 5), Mode: ModeSurvival}); !v.Denied() {
		t.Fatalf("stranger break must be denied")
	}
	if _, v := c.HandleBreak(BreakEvent{Actor: "carol", Loc: loc(5, 64, 5), Mode: ModeSurvival}); v.Denied() {
		t.Fatalf("permitted player break denied: %s", v.Reason)
	}
}

func TestPlaceOccupiedDenied(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	placeFresh(t, c, store, "alice", loc(2, 64, 2))
	v := c.HandlePlace(PlaceEvent{Actor: "bob", Item: TaggedItem{Kind: "HOPPER"}, Loc: loc(2, 64, 2), Mode: ModeSurvival})
	if !v.Denied() || v.Reason != "occupied" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestPlaceTaggedKeepsIdentity(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(3, 64, 3))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(3, 64, 3), Mode: ModeSurvival})

	v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: *res.Drop, Loc: loc(8, 64, 8), Mode: ModeSurvival})
	if v.Denied() {
		t.Fatalf("re-place denied: %s", v.Reason)
	}
	settle(t, c, func() bool {
		r, ok := c.reg.Lookup(loc(8, 64, 8))
		return ok && r.ID == rec.ID
	})
	if sr, _ := store.record(rec.ID); !sr.placed || sr.loc != loc(8, 64, 8) {
		t.Fatalf("store record = %+v", sr)
	}
}

func TestPlaceTaggedByStrangerDenied(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(4, 64, 4))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(4, 64, 4), Mode: ModeSurvival})
	settle(t, c, func() bool {
		sr, _ := store.record(rec.ID)
		return !sr.placed
	})
	before := len(store.opLog())

	v := c.HandlePlace(PlaceEvent{Actor: "bob", Item: *res.Drop, Loc: loc(9, 64, 9), Mode: ModeSurvival})
	if !v.Denied() || v.Reason != "not-owner" {
		t.Fatalf("verdict = %+v", v)
	}
	if sr, _ := store.record(rec.ID); sr.placed {
		t.Fatalf("denied place must not touch the store")
	}
	if got := len(store.opLog()); got != before {
		t.Fatalf("denied place issued %d new store ops", got-before)
	}
}

func TestPlaceTaggedStorageErrorDeclines(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(13, 64, 13))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(13, 64, 13), Mode: ModeSurvival})
	settle(t, c, func() bool {
		sr, _ := store.record(rec.ID)
		return !sr.placed
	})
	before := len(store.opLog())

	// A failing owner lookup is not proof the record vanished: the placement
	// must be declined, never re-minted under the placing player.
	store.mu.Lock()
	store.ownerOfErr = errors.New("database is locked")
	store.mu.Unlock()

	v := c.HandlePlace(PlaceEvent{Actor: "bob", Item: *res.Drop, Loc: loc(14, 64, 14), Mode: ModeSurvival})
	if !v.Denied() || v.Reason != "storage-unavailable" {
		t.Fatalf("verdict = %+v", v)
	}
	if got := len(store.opLog()); got != before {
		t.Fatalf("declined place issued %d new store ops", got-before)
	}
	if sr, ok := store.record(rec.ID); !ok || sr.owner != "alice" {
		t.Fatalf("original record = %+v ok=%v", sr, ok)
	}
	if _, ok := c.pending[loc(14, 64, 14)]; ok {
		t.Fatalf("declined place must not reserve the location")
	}

	// Once the store recovers, a genuinely missing record still mints fresh.
	store.mu.Lock()
	store.ownerOfErr = nil
	delete(store.records, rec.ID)
	store.mu.Unlock()

	if v := c.HandlePlace(PlaceEvent{Actor: "bob", Item: *res.Drop, Loc: loc(14, 64, 14), Mode: ModeSurvival}); v.Denied() {
		t.Fatalf("place of an orphaned tag denied: %s", v.Reason)
	}
	settle(t, c, func() bool {
		r, ok := c.reg.Lookup(loc(14, 64, 14))
		return ok && r.ID != rec.ID && r.Owner == "bob"
	})
}

func TestCreativePlaceMintsNewID(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(6, 64, 6))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(6, 64, 6), Mode: ModeSurvival})

	v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: *res.Drop, Loc: loc(7, 64, 7), Mode: ModeCreative})
	if v.Denied() {
		t.Fatalf("creative place denied: %s", v.Reason)
	}
	settle(t, c, func() bool {
		r, ok := c.reg.Lookup(loc(7, 64, 7))
		return ok && r.ID != rec.ID
	})
	// The original record stays behind as an unplaced item record.
	if sr, ok := store.record(rec.ID); !ok || sr.placed {
		t.Fatalf("original record = %+v ok=%v", sr, ok)
	}
}

func TestExplosionDrawDecidesFate(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	lucky := placeFresh(t, c, store, "alice", loc(10, 64, 10))
	c.drawFn = func() float64 { return 0 } // always under the drop chance
	outs := c.HandleExplosion(ExplosionEvent{Source: SourceCreeper, Blocks: []Location{loc(10, 64, 10), loc(11, 64, 11)}})
	if len(outs) != 1 {
		t.Fatalf("outcomes = %+v", outs)
	}
	if outs[0].Drop == nil || outs[0].Drop.ID != lucky.ID {
		t.Fatalf("expected tagged drop, got %+v", outs[0])
	}
	settle(t, c, func() bool {
		sr, ok := store.record(lucky.ID)
		return ok && !sr.placed
	})

	unlucky := placeFresh(t, c, store, "alice", loc(12, 64, 12))
	c.drawFn = func() float64 { return 0.999 }
	outs = c.HandleExplosion(ExplosionEvent{Source: SourceWither, Blocks: []Location{loc(12, 64, 12)}})
	if len(outs) != 1 || outs[0].Drop != nil {
		t.Fatalf("expected destroyed hopper, got %+v", outs)
	}
	settle(t, c, func() bool {
		_, ok := store.record(unlucky.ID)
		return !ok
	})
}

func TestBreakRacesPendingInsert(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	hold := make(chan struct{})
	store.mu.Lock()
	store.holdPlacement = hold
	store.mu.Unlock()

	v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: TaggedItem{Kind: "HOPPER"}, Loc: loc(20, 64, 20), Mode: ModeSurvival})
	if v.Denied() {
		t.Fatalf("place denied: %s", v.Reason)
	}

	// The insert is still in flight; breaking now must cancel it.
	res, bv := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(20, 64, 20), Mode: ModeSurvival})
	if bv.Denied() {
		t.Fatalf("break denied: %s", bv.Reason)
	}
	if res.Drop == nil || res.Drop.ID != "" {
		t.Fatalf("expected an untagged template drop, got %+v", res.Drop)
	}

	close(hold)
	store.mu.Lock()
	store.holdPlacement = nil
	store.mu.Unlock()

	// The completed insert must be followed by a delete, not a register.
	settle(t, c, func() bool {
		ops := store.opLog()
		return len(ops) >= 2 && ops[len(ops)-1] == "delete h1"
	})
	if _, ok := c.reg.Lookup(loc(20, 64, 20)); ok {
		t.Fatalf("cancelled placement must not register")
	}
}

func TestBreakRacesPendingReplace(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(21, 64, 21))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(21, 64, 21), Mode: ModeSurvival})
	settle(t, c, func() bool {
		sr, _ := store.record(rec.ID)
		return !sr.placed
	})

	hold := make(chan struct{})
	store.mu.Lock()
	store.holdPlacement = hold
	store.mu.Unlock()

	if v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: *res.Drop, Loc: loc(22, 64, 22), Mode: ModeSurvival}); v.Denied() {
		t.Fatalf("re-place denied: %s", v.Reason)
	}
	res2, bv := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(22, 64, 22), Mode: ModeSurvival})
	if bv.Denied() {
		t.Fatalf("break denied: %s", bv.Reason)
	}
	if res2.Drop == nil || res2.Drop.ID != rec.ID {
		t.Fatalf("racing break must keep the identity, got %+v", res2.Drop)
	}

	close(hold)
	store.mu.Lock()
	store.holdPlacement = nil
	store.mu.Unlock()

	settle(t, c, func() bool {
		ops := store.opLog()
		return len(ops) > 0 && ops[len(ops)-1] == "mark_unplaced "+rec.ID
	})
	if sr, ok := store.record(rec.ID); !ok || sr.placed {
		t.Fatalf("store record = %+v ok=%v", sr, ok)
	}
	if _, ok := c.reg.Lookup(loc(22, 64, 22)); ok {
		t.Fatalf("cancelled placement must not register")
	}
}

func TestExplosionRacesPendingReplace(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(23, 64, 23))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(23, 64, 23), Mode: ModeSurvival})
	settle(t, c, func() bool {
		sr, _ := store.record(rec.ID)
		return !sr.placed
	})

	hold := make(chan struct{})
	store.mu.Lock()
	store.holdPlacement = hold
	store.mu.Unlock()

	if v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: *res.Drop, Loc: loc(24, 64, 24), Mode: ModeSurvival}); v.Denied() {
		t.Fatalf("re-place denied: %s", v.Reason)
	}

	// A lucky draw against a pending re-place keeps the identity as a drop.
	c.drawFn = func() float64 { return 0 }
	outs := c.HandleExplosion(ExplosionEvent{Source: SourcePrimedTNT, Blocks: []Location{loc(24, 64, 24)}})
	if len(outs) != 1 || outs[0].Drop == nil || outs[0].Drop.ID != rec.ID {
		t.Fatalf("outcomes = %+v", outs)
	}

	close(hold)
	store.mu.Lock()
	store.holdPlacement = nil
	store.mu.Unlock()

	settle(t, c, func() bool {
		ops := store.opLog()
		return len(ops) > 0 && ops[len(ops)-1] == "mark_unplaced "+rec.ID
	})
	if sr, ok := store.record(rec.ID); !ok || sr.placed {
		t.Fatalf("record after lucky draw = %+v ok=%v", sr, ok)
	}
	if _, ok := c.reg.Lookup(loc(24, 64, 24)); ok {
		t.Fatalf("cancelled placement must not register")
	}
}

func TestExplosionRacesPendingReplaceUnlucky(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(25, 64, 25))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(25, 64, 25), Mode: ModeSurvival})
	settle(t, c, func() bool {
		sr, _ := store.record(rec.ID)
		return !sr.placed
	})

	hold := make(chan struct{})
	store.mu.Lock()
	store.holdPlacement = hold
	store.mu.Unlock()

	if v := c.HandlePlace(PlaceEvent{Actor: "alice", Item: *res.Drop, Loc: loc(26, 64, 26), Mode: ModeSurvival}); v.Denied() {
		t.Fatalf("re-place denied: %s", v.Reason)
	}

	c.drawFn = func() float64 { return 0.999 }
	outs := c.HandleExplosion(ExplosionEvent{Source: SourceWither, Blocks: []Location{loc(26, 64, 26)}})
	if len(outs) != 1 || outs[0].Drop != nil || outs[0].ID != rec.ID {
		t.Fatalf("outcomes = %+v", outs)
	}

	close(hold)
	store.mu.Lock()
	store.holdPlacement = nil
	store.mu.Unlock()

	settle(t, c, func() bool {
		_, ok := store.record(rec.ID)
		return !ok
	})
}

func TestTransferFiltering(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	placeFresh(t, c, store, "alice", loc(30, 64, 30))
	dest := loc(30, 64, 30)

	diamond := ItemStack{Kind: "DIAMOND", Count: 1}
	dirt := ItemStack{Kind: "DIRT", Count: 64}

	// Empty filter lets everything through.
	if !c.AllowTransfer(TransferEvent{Dest: &dest, Item: dirt}) {
		t.Fatalf("empty filter must allow")
	}

	if v := c.SetFilter("alice", dest, []ItemStack{diamond}); v.Denied() {
		t.Fatalf("set filter denied: %s", v.Reason)
	}
	if c.AllowTransfer(TransferEvent{Dest: &dest, Item: dirt}) {
		t.Fatalf("filtered hopper must reject dirt")
	}
	if !c.AllowTransfer(TransferEvent{Dest: &dest, Item: ItemStack{Kind: "DIAMOND", Count: 7}}) {
		t.Fatalf("count must not affect matching")
	}
	// Unregistered endpoints never filter.
	elsewhere := loc(99, 64, 99)
	if !c.AllowTransfer(TransferEvent{Source: &elsewhere, Item: dirt}) {
		t.Fatalf("plain container must allow")
	}

	if v := c.SetFilter("bob", dest, nil); !v.Denied() {
		t.Fatalf("stranger must not set filters")
	}
}

func TestModeChangeSuspendAndRestore(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	a := placeFresh(t, c, store, "alice", loc(40, 64, 40))
	b := placeFresh(t, c, store, "alice", loc(41, 64, 41))
	resA, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(40, 64, 40), Mode: ModeSurvival})
	resB, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(41, 64, 41), Mode: ModeSurvival})

	sus, _ := c.HandleModeChange(ModeChangeEvent{
		Player:    "alice",
		From:      ModeSurvival,
		To:        ModeCreative,
		Inventory: []TaggedItem{*resA.Drop, *resB.Drop, {Kind: "HOPPER"}},
	})
	if sus == nil || len(sus.Stashed) != 2 {
		t.Fatalf("suspend = %+v", sus)
	}
	if sus.Replacement == nil || sus.Replacement.Tagged() {
		t.Fatalf("replacement must be an untagged template, got %+v", sus.Replacement)
	}
	settle(t, c, func() bool {
		st, _ := store.LoadStash("alice")
		return len(st) == 2
	})

	// One record dies while stashed; restore must discard it.
	store.mu.Lock()
	delete(store.records, b.ID)
	store.mu.Unlock()

	_, res := c.HandleModeChange(ModeChangeEvent{Player: "alice", From: ModeCreative, To: ModeSurvival})
	if res == nil || len(res.Restored) != 1 || res.Restored[0].ID != a.ID {
		t.Fatalf("restore = %+v", res)
	}
	if len(res.Discarded) != 1 || res.Discarded[0].ID != b.ID {
		t.Fatalf("discarded = %+v", res.Discarded)
	}
	settle(t, c, func() bool {
		st, _ := store.LoadStash("alice")
		return len(st) == 1 && st[0].ID == a.ID
	})
}

func TestItemGoneRecheck(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(50, 64, 50))
	res, _ := c.HandleBreak(BreakEvent{Actor: "alice", Loc: loc(50, 64, 50), Mode: ModeSurvival})

	// The entity turns out to be alive on recheck: nothing happens.
	c.HandleItemGone(ItemGoneEvent{Item: *res.Drop, Cause: "fire", Alive: func() bool { return true }})
	c.Tick()
	if _, ok := store.record(rec.ID); !ok {
		t.Fatalf("surviving item must keep its record")
	}

	// Confirmed gone: the record is deleted.
	c.HandleItemGone(ItemGoneEvent{Item: *res.Drop, Cause: "fire", Alive: func() bool { return false }})
	settle(t, c, func() bool {
		_, ok := store.record(rec.ID)
		return !ok
	})
}

func TestLoadPlacedRepopulates(t *testing.T) {
	store := newMemStore()
	store.records["a"] = &storedRec{owner: "alice", loc: loc(1, 64, 1), placed: true}
	store.records["b"] = &storedRec{owner: "alice", placed: false}
	store.records["c"] = &storedRec{owner: "bob", loc: loc(2, 64, 2), placed: true, filter: []ItemStack{{Kind: "DIRT"}}}

	c := newTestCoordinator(t, store, nil)
	placed, stored, err := c.LoadPlaced()
	if err != nil {
		t.Fatalf("LoadPlaced: %v", err)
	}
	if placed != 2 || stored != 1 {
		t.Fatalf("placed=%d stored=%d", placed, stored)
	}
	rec, ok := c.reg.Lookup(loc(2, 64, 2))
	if !ok || rec.Owner != "bob" || len(rec.Filter) != 1 {
		t.Fatalf("rec = %+v ok=%v", rec, ok)
	}
}

func TestAdminRemoveEvicts(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(t, store, nil)

	rec := placeFresh(t, c, store, "alice", loc(60, 64, 60))
	c.Remove(rec.ID, rec.Owner, rec.Loc, true)
	if _, ok := c.reg.Lookup(loc(60, 64, 60)); ok {
		t.Fatalf("removed hopper still registered")
	}
	settle(t, c, func() bool {
		_, ok := store.record(rec.ID)
		return !ok
	})
}
