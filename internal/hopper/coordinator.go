package hopper

import (
	"context"
	"errors"
	"log"
	"time"
)

// Coordinator drives the hopper lifecycle state machine. It is owned by the
// single synchronous world goroutine: every Handle* method, Tick and Close
// must be called from that goroutine only. Durable mutations are handed to
// one background worker over a FIFO queue: a single worker gives global
// write ordering, which subsumes the per-id ordering the lifecycle needs.
// Completions come back over a channel that Tick drains on the world
// thread. The in-memory registry is authoritative for gameplay; a failed
// write degrades to a logged, audited miss, never a rollback of world state.
type Coordinator struct {
	store Store
	perms PermissionChecker
	reg   *Registry
	audit AuditSink
	log   *log.Logger

	itemKind     string
	compactEvery int

	tasks   chan task
	results chan completion
	done    chan struct{}
	closed  bool

	// Placements whose insert/mark-placed is still in flight, keyed by the
	// reserved location. A break or explosion arriving before the write
	// completes cancels the entry; the completion then issues the recorded
	// follow-up instead of registering stale state.
	pending map[Location]*pendingPlace

	// Carried-item destruction re-checks: filled this tick, probed next tick.
	recheckNext []ItemGoneEvent
	recheckNow  []ItemGoneEvent

	ops    int
	drawFn func() float64
}

type pendingPlace struct {
	id        string // "" while a fresh insert is in flight
	owner     string
	cancelled bool
	onCancel  cancelOp
}

type cancelOp int

const (
	cancelDelete cancelOp = iota
	cancelUnplace
)

// taskOut carries data produced on the async side back to the world thread.
type taskOut struct {
	id     string
	filter []ItemStack
}

type task struct {
	op    string
	entry AuditEntry
	exec  func() (taskOut, error)
	apply func(c *Coordinator, out taskOut, err error)
}

type completion struct {
	t   task
	out taskOut
	err error
}

type CoordinatorConfig struct {
	// ItemKind is the host item type minted for hopper drops and templates.
	ItemKind string
	// CompactEvery triggers registry compaction after this many
	// lifecycle-mutating operations.
	CompactEvery int
	// QueueSize bounds the persistence task queue.
	QueueSize int
	Logger    *log.Logger
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.ItemKind == "" {
		c.ItemKind = "HOPPER"
	}
	if c.CompactEvery <= 0 {
		c.CompactEvery = 100
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

func NewCoordinator(cfg CoordinatorConfig, store Store, perms PermissionChecker, reg *Registry, audit AuditSink) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		store:        store,
		perms:        perms,
		reg:          reg,
		audit:        audit,
		log:          cfg.Logger,
		itemKind:     cfg.ItemKind,
		compactEvery: cfg.CompactEvery,
		tasks:        make(chan task, cfg.QueueSize),
		results:      make(chan completion, cfg.QueueSize),
		done:         make(chan struct{}),
		pending:      map[Location]*pendingPlace{},
		drawFn:       secureFloat64,
	}
	go c.worker()
	return c
}

// LoadPlaced repopulates the registry from the store. Call once at startup,
// before the world loop starts.
func (c *Coordinator) LoadPlaced() (placed, stored int, err error) {
	recs, err := c.store.LoadAll()
	if err != nil {
		return 0, 0, err
	}
	for i := range recs {
		rec := recs[i]
		if !rec.Placed {
			continue
		}
		r := rec
		if regErr := c.reg.Register(&r); regErr != nil {
			c.log.Printf("ERROR startup register %s: %v", rec.ID, regErr)
			continue
		}
		placed++
	}
	return placed, len(recs) - placed, nil
}

// HandlePlace processes a block placement of a filtered-hopper item.
func (c *Coordinator) HandlePlace(ev PlaceEvent) Verdict {
	if ev.Loc.Zero() {
		c.log.Printf("ERROR place by %s: missing world in location", ev.Actor)
		return deny("invalid-location")
	}
	if c.reg.Contains(ev.Loc) || c.pending[ev.Loc] != nil {
		c.log.Printf("ERROR place by %s at %s: location already occupied", ev.Actor, ev.Loc)
		return deny("occupied")
	}

	owner := ev.Actor
	if ev.Item.Tagged() {
		dbOwner, err := c.store.OwnerOf(ev.Item.ID)
		switch {
		case err == nil:
			if dbOwner != ev.Actor {
				ok, perr := c.perms.Allowed(dbOwner, ev.Actor, ev.Item.ID)
				if perr != nil {
					c.log.Printf("ERROR place permission check for %s: %v", ev.Item.ID, perr)
					return deny("not-owner")
				}
				if !ok {
					return deny("not-owner")
				}
			}
			owner = dbOwner
		case errors.Is(err, ErrNotFound):
			// The tagged record vanished while the item was carried around;
			// fall through to a fresh insert under the placing player.
			c.log.Printf("WARN place: tagged id %s not in store, minting new", ev.Item.ID)
			ev.Item.ID = ""
		default:
			// A storage failure is not proof the record is gone. Declining
			// the placement keeps the identity unique; minting here would
			// duplicate it.
			c.log.Printf("ERROR place owner lookup for %s: %v", ev.Item.ID, err)
			return deny("storage-unavailable")
		}
	}

	switch {
	case ev.Item.Tagged() && !ev.Mode.Creative():
		c.schedulePlaceExisting(ev.Item.ID, owner, ev.Loc)
	default:
		// Fresh item, or creative re-place: creative never reuses an id.
		c.scheduleInsert(owner, ev.Loc)
	}
	c.afterMutation()
	return allow()
}

func (c *Coordinator) scheduleInsert(owner string, loc Location) {
	c.pending[loc] = &pendingPlace{owner: owner, onCancel: cancelDelete}
	c.schedule(task{
		op:    "insert",
		entry: locEntry("insert", "", owner, loc),
		exec: func() (taskOut, error) {
			id, err := c.store.Insert(owner, loc)
			return taskOut{id: id}, err
		},
		apply: func(c *Coordinator, out taskOut, err error) {
			c.finishPlacement(loc, out, err)
		},
	})
}

func (c *Coordinator) schedulePlaceExisting(id, owner string, loc Location) {
	c.pending[loc] = &pendingPlace{id: id, owner: owner, onCancel: cancelUnplace}
	c.schedule(task{
		op:    "replace",
		entry: locEntry("replace", id, owner, loc),
		exec: func() (taskOut, error) {
			if err := c.store.MarkPlaced(id, loc); err != nil {
				return taskOut{}, err
			}
			filter, err := c.store.LoadFilterItems(id)
			if err != nil {
				// Unreadable filter degrades to allow-all; the placement
				// itself succeeded.
				c.log.Printf("WARN load filter for %s: %v", id, err)
				filter = nil
			}
			return taskOut{id: id, filter: filter}, nil
		},
		apply: func(c *Coordinator, out taskOut, err error) {
			c.finishPlacement(loc, out, err)
		},
	})
}

// finishPlacement runs on the world thread once the insert/mark-placed write
// lands. It either registers the now-durable record or, if the block was
// destroyed while the write was in flight, issues the recorded follow-up so
// the store cannot resurrect stale state.
func (c *Coordinator) finishPlacement(loc Location, out taskOut, err error) {
	p := c.pending[loc]
	delete(c.pending, loc)
	if p == nil {
		c.log.Printf("ERROR placement completion at %s with no pending entry", loc)
		return
	}
	if err != nil {
		// Degraded state: the world shows a placed block that the store
		// never heard of. Never register an unpersisted id.
		c.log.Printf("ERROR persist placement at %s for owner %s: %v", loc, p.owner, err)
		return
	}
	if p.cancelled {
		switch p.onCancel {
		case cancelUnplace:
			c.scheduleSimple("unplace", out.id, p.owner, loc, func() error {
				return c.store.MarkUnplaced(out.id)
			})
		default:
			c.scheduleSimple("delete", out.id, p.owner, loc, func() error {
				return c.store.Delete(out.id)
			})
		}
		return
	}
	rec := &Record{ID: out.id, Owner: p.owner, Loc: loc, Placed: true, Filter: out.filter}
	if regErr := c.reg.Register(rec); regErr != nil {
		c.log.Printf("ERROR register %s at %s: %v", out.id, loc, regErr)
		// Keep store and world consistent: the record is not visible, so it
		// must not stay marked placed.
		c.scheduleSimple("unplace", out.id, p.owner, loc, func() error {
			return c.store.MarkUnplaced(out.id)
		})
	}
}

// HandleBreak processes a player breaking a filtered hopper block.
func (c *Coordinator) HandleBreak(ev BreakEvent) (BreakResult, Verdict) {
	rec, ok := c.reg.Lookup(ev.Loc)
	if !ok {
		return c.breakPending(ev)
	}
	if v := c.authorize(rec.Owner, ev.Actor, rec.ID); v.Denied() {
		return BreakResult{}, v
	}

	c.reg.Unregister(ev.Loc)
	var res BreakResult
	if ev.Mode.Creative() {
		// Creative discards history: the record is gone for good.
		c.scheduleSimple("break_creative", rec.ID, rec.Owner, ev.Loc, func() error {
			return c.store.Delete(rec.ID)
		})
	} else {
		rec.Placed = false
		c.scheduleSimple("break_survival", rec.ID, rec.Owner, ev.Loc, func() error {
			return c.store.MarkUnplaced(rec.ID)
		})
		item := rec.Item(c.itemKind)
		res.Drop = &item
	}
	c.afterMutation()
	return res, allow()
}

// breakPending handles a break racing a still-in-flight placement write.
func (c *Coordinator) breakPending(ev BreakEvent) (BreakResult, Verdict) {
	p := c.pending[ev.Loc]
	if p == nil {
		return BreakResult{}, deny("not-registered")
	}
	if v := c.authorize(p.owner, ev.Actor, p.id); v.Denied() {
		return BreakResult{}, v
	}
	p.cancelled = true
	var res BreakResult
	switch {
	case ev.Mode.Creative():
		p.onCancel = cancelDelete
	case p.id != "":
		p.onCancel = cancelUnplace
		item := TaggedItem{Kind: c.itemKind, ID: p.id, Owner: p.owner}
		res.Drop = &item
	default:
		// The id never reached the world; drop a plain template so the
		// player keeps the item without orphaning a record.
		p.onCancel = cancelDelete
		item := TaggedItem{Kind: c.itemKind}
		res.Drop = &item
	}
	c.afterMutation()
	return res, allow()
}

// HandleExplosion resolves every affected hopper with an unbiased draw
// against the source's drop table: lucky hoppers survive as tagged drops,
// the rest are deleted.
func (c *Coordinator) HandleExplosion(ev ExplosionEvent) []ExplosionOutcome {
	var outcomes []ExplosionOutcome
	for _, loc := range ev.Blocks {
		rec, ok := c.reg.Lookup(loc)
		if !ok {
			if out, hit := c.explodePending(loc, ev.Source); hit {
				outcomes = append(outcomes, out)
				c.afterMutation()
			}
			continue
		}
		c.reg.Unregister(loc)
		out := ExplosionOutcome{Loc: loc, ID: rec.ID}
		if c.drawFn() < ev.Source.DropChance() {
			rec.Placed = false
			item := rec.Item(c.itemKind)
			out.Drop = &item
			c.scheduleSimple("explosion_drop", rec.ID, rec.Owner, loc, func() error {
				return c.store.MarkUnplaced(rec.ID)
			})
		} else {
			c.scheduleSimple("explosion_destroy", rec.ID, rec.Owner, loc, func() error {
				return c.store.Delete(rec.ID)
			})
		}
		outcomes = append(outcomes, out)
		c.afterMutation()
	}
	return outcomes
}

// explodePending resolves an explosion hitting a placement whose write is
// still in flight. A re-placed record gets the same drop-table draw as a
// registered one; a fresh insert is simply cancelled, its minted row deleted.
func (c *Coordinator) explodePending(loc Location, src ExplosionSource) (ExplosionOutcome, bool) {
	p := c.pending[loc]
	if p == nil {
		return ExplosionOutcome{}, false
	}
	p.cancelled = true
	if p.id == "" {
		p.onCancel = cancelDelete
		return ExplosionOutcome{}, false
	}
	out := ExplosionOutcome{Loc: loc, ID: p.id}
	if c.drawFn() < src.DropChance() {
		p.onCancel = cancelUnplace
		item := TaggedItem{Kind: c.itemKind, ID: p.id, Owner: p.owner}
		out.Drop = &item
	} else {
		p.onCancel = cancelDelete
	}
	return out, true
}

// HandleItemGone records a destruction event for a carried tagged item. The
// host fires these before the entity is actually removed, so the liveness
// probe runs on the next Tick; only a confirmed-gone item deletes the record.
func (c *Coordinator) HandleItemGone(ev ItemGoneEvent) {
	if !ev.Item.Tagged() {
		return
	}
	c.recheckNext = append(c.recheckNext, ev)
}

// HandleModeChange applies the creative-mode suspension rules.
func (c *Coordinator) HandleModeChange(ev ModeChangeEvent) (*SuspendResult, *RestoreResult) {
	switch {
	case ev.To == ModeCreative && ev.From != ModeCreative:
		return c.suspendToStash(ev), nil
	case ev.From == ModeCreative && ev.To == ModeSurvival:
		return nil, c.restoreFromStash(ev.Player)
	default:
		return nil, nil
	}
}

func (c *Coordinator) suspendToStash(ev ModeChangeEvent) *SuspendResult {
	var entries []StashEntry
	for _, it := range ev.Inventory {
		if it.Tagged() {
			entries = append(entries, StashEntry{ID: it.ID, Owner: it.Owner})
		}
	}
	if len(entries) == 0 {
		return nil
	}
	player := ev.Player
	stash := append([]StashEntry(nil), entries...)
	c.schedule(task{
		op:    "stash_suspend",
		entry: AuditEntry{Op: "stash_suspend", Owner: player, Outcome: "ok"},
		exec: func() (taskOut, error) {
			// Merge on the async side: the stash blob also snapshots each
			// hopper's filter at suspension time.
			prev, err := c.store.LoadStash(player)
			if err != nil {
				return taskOut{}, err
			}
			for i := range stash {
				filter, ferr := c.store.LoadFilterItems(stash[i].ID)
				if ferr == nil {
					stash[i].Filter = filter
				}
			}
			return taskOut{}, c.store.SaveStash(player, append(prev, stash...))
		},
		apply: func(c *Coordinator, _ taskOut, err error) {
			if err != nil {
				c.log.Printf("ERROR save creative stash for %s: %v", player, err)
			}
		},
	})
	c.afterMutation()
	tmpl := TaggedItem{Kind: c.itemKind}
	return &SuspendResult{Stashed: entries, Replacement: &tmpl}
}

func (c *Coordinator) restoreFromStash(player string) *RestoreResult {
	entries, err := c.store.LoadStash(player)
	if err != nil {
		c.log.Printf("ERROR load creative stash for %s: %v", player, err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	res := &RestoreResult{}
	var survivors []StashEntry
	for _, e := range entries {
		exists, eerr := c.store.ExistsByID(e.ID)
		if eerr != nil {
			c.log.Printf("ERROR stash existence check for %s: %v", e.ID, eerr)
			exists = false
		}
		if exists {
			survivors = append(survivors, e)
			res.Restored = append(res.Restored, e.Item(c.itemKind))
		} else {
			res.Discarded = append(res.Discarded, e)
		}
	}
	kept := append([]StashEntry(nil), survivors...)
	c.schedule(task{
		op:    "stash_restore",
		entry: AuditEntry{Op: "stash_restore", Owner: player, Outcome: "ok"},
		exec: func() (taskOut, error) {
			if len(kept) == 0 {
				return taskOut{}, c.store.DeleteStash(player)
			}
			return taskOut{}, c.store.SaveStash(player, kept)
		},
		apply: func(c *Coordinator, _ taskOut, err error) {
			if err != nil {
				c.log.Printf("ERROR persist restored stash for %s: %v", player, err)
			}
		},
	})
	c.afterMutation()
	return res
}

// AllowTransfer gates an item movement through registered containers. Pure
// in-memory check: filters are cached on the record, so the world thread
// never waits on I/O here.
func (c *Coordinator) AllowTransfer(ev TransferEvent) bool {
	for _, loc := range []*Location{ev.Source, ev.Dest} {
		if loc == nil {
			continue
		}
		if rec, ok := c.reg.Lookup(*loc); ok && !FilterAllows(rec.Filter, ev.Item) {
			return false
		}
	}
	return true
}

// SetFilter replaces the filter of the hopper at loc. The cached record
// updates synchronously so transfer checks see the new filter immediately;
// persistence follows asynchronously.
func (c *Coordinator) SetFilter(actor string, loc Location, items []ItemStack) Verdict {
	rec, ok := c.reg.Lookup(loc)
	if !ok {
		return deny("not-registered")
	}
	if v := c.authorize(rec.Owner, actor, rec.ID); v.Denied() {
		return v
	}
	filter := append([]ItemStack(nil), ClampFilter(items)...)
	rec.Filter = filter
	c.scheduleSimple("set_filter", rec.ID, rec.Owner, loc, func() error {
		return c.store.SaveFilterItems(rec.ID, filter)
	})
	c.afterMutation()
	return allow()
}

// Remove is the administrative delete path: it evicts the registry entry if
// the record is placed and schedules the cascading store delete. The command
// layer calls this rather than touching the registry itself.
func (c *Coordinator) Remove(id, owner string, loc Location, placed bool) {
	if placed {
		c.reg.Unregister(loc)
	}
	c.scheduleSimple("remove", id, owner, loc, func() error {
		return c.store.Delete(id)
	})
	c.afterMutation()
}

// Tick drains persistence completions and runs the one-tick-delayed
// carried-item rechecks. Call once per world tick.
func (c *Coordinator) Tick() {
	for {
		select {
		case comp := <-c.results:
			comp.t.apply(c, comp.out, comp.err)
		default:
			c.runRechecks()
			return
		}
	}
}

func (c *Coordinator) runRechecks() {
	c.recheckNow, c.recheckNext = c.recheckNext, c.recheckNow[:0]
	for _, ev := range c.recheckNow {
		if ev.Alive != nil && ev.Alive() {
			continue // the entity survived after all
		}
		id, owner, cause := ev.Item.ID, ev.Item.Owner, ev.Cause
		c.schedule(task{
			op:    "item_destroyed",
			entry: AuditEntry{Op: "item_destroyed", ID: id, Owner: owner, Outcome: cause},
			exec: func() (taskOut, error) {
				return taskOut{}, c.store.Delete(id)
			},
			apply: func(c *Coordinator, _ taskOut, err error) {
				if err != nil {
					c.log.Printf("ERROR delete destroyed item record %s: %v", id, err)
				}
			},
		})
		c.afterMutation()
	}
}

// Close stops accepting work, waits for queued writes to land (bounded by
// ctx) and leaves the store untouched otherwise; the composition root flushes
// and closes the store itself.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.tasks)
	select {
	case <-c.done:
	case <-ctx.Done():
		c.log.Printf("WARN coordinator close: persistence flush timed out: %v", ctx.Err())
		return ctx.Err()
	}
	// Apply any straggler completions so logs reflect reality.
	for {
		select {
		case comp := <-c.results:
			comp.t.apply(c, comp.out, comp.err)
		default:
			return nil
		}
	}
}

func (c *Coordinator) authorize(owner, actor, id string) Verdict {
	if actor == owner {
		return allow()
	}
	ok, err := c.perms.Allowed(owner, actor, id)
	if err != nil {
		c.log.Printf("ERROR permission check owner=%s actor=%s id=%s: %v", owner, actor, id, err)
		return deny("not-owner")
	}
	if !ok {
		return deny("not-owner")
	}
	return allow()
}

func (c *Coordinator) scheduleSimple(op, id, owner string, loc Location, run func() error) {
	c.schedule(task{
		op:    op,
		entry: locEntry(op, id, owner, loc),
		exec: func() (taskOut, error) {
			return taskOut{id: id}, run()
		},
		apply: func(c *Coordinator, _ taskOut, err error) {
			if err != nil {
				c.log.Printf("ERROR persist %s for %s: %v", op, id, err)
			}
		},
	})
}

func (c *Coordinator) schedule(t task) {
	if c.closed {
		c.log.Printf("ERROR dropped %s task after close", t.op)
		return
	}
	select {
	case c.tasks <- t:
	default:
		// A full queue means the store is badly behind. Dropping the write
		// keeps the world thread alive; the miss is logged and audited.
		c.log.Printf("ERROR persistence queue full, dropped %s for %s", t.op, t.entry.ID)
		c.writeAudit(t.op, t.entry, errQueueFull)
	}
}

func (c *Coordinator) worker() {
	defer close(c.done)
	for t := range c.tasks {
		out, err := t.exec()
		if t.entry.ID == "" {
			t.entry.ID = out.id
		}
		c.writeAudit(t.op, t.entry, err)
		c.results <- completion{t: t, out: out, err: err}
	}
}

func (c *Coordinator) writeAudit(op string, entry AuditEntry, err error) {
	if c.audit == nil {
		return
	}
	entry.TS = time.Now().UTC().Format(time.RFC3339Nano)
	if err != nil {
		entry.Outcome = "error: " + err.Error()
	} else if entry.Outcome == "" {
		entry.Outcome = "ok"
	}
	if werr := c.audit.WriteLifecycle(entry); werr != nil {
		c.log.Printf("WARN audit write for %s: %v", op, werr)
	}
}

func (c *Coordinator) afterMutation() {
	c.ops++
	if c.ops >= c.compactEvery {
		c.ops = 0
		c.reg.Compact()
	}
}

func locEntry(op, id, owner string, loc Location) AuditEntry {
	return AuditEntry{
		Op:    op,
		ID:    id,
		Owner: owner,
		World: loc.World,
		X:     loc.X,
		Y:     loc.Y,
		Z:     loc.Z,
	}
}

var errQueueFull = errQueue{}

type errQueue struct{}

func (errQueue) Error() string { return "persistence queue full" }
