// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flostore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/container/lru"
	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/ineiti/fledger/internal/progresslog"
	"github.com/ineiti/fledger/router"
	"github.com/ineiti/fledger/wire"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	// DefaultSpread is the number of copies targeted per object when the
	// realm definition does not specify one or is not held.
	DefaultSpread = 3

	// DefaultOverProvide scales the number of candidates a store walk
	// offers an object to beyond the realm's spread, so placement survives
	// declines and churn along the walk.
	DefaultOverProvide = 2

	// DefaultSyncInterval is how often held object descriptions are
	// announced to direct neighbors.
	DefaultSyncInterval = 30 * time.Second

	// DefaultPruneInterval is how often expired and orphaned objects are
	// discarded.
	DefaultPruneInterval = time.Minute

	// DefaultPendingTimeout is how long an originated request waits for
	// answers before it completes with whatever it has collected.
	DefaultPendingTimeout = 10 * time.Second

	// DefaultSweepInterval is how often request deadlines and periodic
	// duties are checked.
	DefaultSweepInterval = time.Second

	// maxTrackedSyncRequests bounds the cache of recently requested object
	// identifiers that keeps overlapping neighbor announcements from
	// triggering duplicate transfers.
	maxTrackedSyncRequests = 2000

	// badgeCacheLimit and badgeCacheTTL bound the cache of parsed badge
	// objects used during proof evaluation.
	badgeCacheLimit = 256
	badgeCacheTTL   = time.Minute

	// msgChanBufferSize is the number of elements the internal message
	// queue buffers before posting blocks.
	msgChanBufferSize = 512
)

// Overlay is the routing surface the store drives.  It is implemented by
// router.Router.
type Overlay interface {
	// SendClosest starts a walk toward the target that hands the payload
	// to each node along the way.  It returns the correlation number
	// answers will echo.
	SendClosest(target flid.ID, payload wire.Message) (uint64, error)

	// ContinueClosest resumes a delivered walk with a replacement payload.
	ContinueClosest(env router.Envelope, payload wire.Message) error

	// SendDirect routes a payload toward the given node.
	SendDirect(dest flid.ID, corr uint64, payload wire.Message) error

	// NeighborQuery sends the payload to every direct neighbor and
	// aggregates their replies.
	NeighborQuery(payload wire.Message) (uint64, error)

	// ReplyNeighbor answers a neighbor query.
	ReplyNeighbor(to flid.ID, corr uint64, payload wire.Message) error

	// KnownNodes returns the nodes currently usable for routing.
	KnownNodes() []flid.ID
}

// Config is the configuration of the Store.
type Config struct {
	// Self is the identifier of the local node.  It is the origin checked
	// against realm member lists when this node stores or updates its own
	// objects.
	Self flid.ID

	// DB is the open object database, typically from LoadFloDB.  The
	// store does not close it.
	DB *leveldb.DB

	// Overlay provides the routing operations.  It must be usable for the
	// whole lifetime of the store.
	Overlay Overlay

	// Realms lists the realms this node serves.  An empty list serves any
	// realm a definition is held for.
	Realms []flid.ID

	// OwnedRealms lists realms whose objects are stored without regard to
	// the realm's space budget.  Owned realms are always served.
	OwnedRealms []flid.ID

	// OverProvide scales the number of candidates a store walk offers an
	// object to beyond the realm's spread.  Zero selects
	// DefaultOverProvide.
	OverProvide uint32

	// SyncInterval is the time between neighbor announcements of held
	// object descriptions.  Zero selects DefaultSyncInterval.
	SyncInterval time.Duration

	// PruneInterval is the time between expiry sweeps.  Zero selects
	// DefaultPruneInterval.
	PruneInterval time.Duration

	// PendingTimeout is how long originated requests wait for answers.
	// Zero selects DefaultPendingTimeout.
	PendingTimeout time.Duration

	// SweepInterval is how often deadlines and periodic duties are
	// checked.  Zero selects DefaultSweepInterval.
	SweepInterval time.Duration

	// Now returns the current time.  Zero selects time.Now.
	Now func() time.Time
}

// RealmInfo describes a realm whose definition is held, together with the
// space its objects occupy here.
type RealmInfo struct {
	ID       flid.ID
	Name     string
	Spread   uint32
	MaxSpace uint64
	Usage    uint64
	Objects  int
}

// heldFlo is the in-memory record of a stored object.
type heldFlo struct {
	flo  *flo.Flo
	size uint64

	// realmID is recorded separately so accounting stays consistent even
	// if a later copy of the object carries a different realm field.
	realmID flid.ID

	// storedAt is when this holder stored or last refreshed the object.
	// It drives duration-based expiry.
	storedAt time.Time
}

// putResult is the outcome of a store request.
type putResult struct {
	placements int
	err        error
}

// getResult is the outcome of a fetch request.
type getResult struct {
	flo *flo.Flo
	err error
}

// updateResult is the outcome of an update request.
type updateResult struct {
	acks int
	err  error
}

// pendingPut tracks an originated store walk until enough acceptances
// arrive or its deadline passes.
type pendingPut struct {
	id     flid.ID
	want   int
	placed int

	budget, unknownRealm, tooLarge, notMember, invalid int

	deadline time.Time
	reply    chan putResult
}

// failure maps the declines collected by a store walk that placed nothing
// to the most telling error.
func (p *pendingPut) failure() error {
	switch {
	case p.tooLarge > 0:
		return storeError(ErrTooLarge, fmt.Sprintf("object %s exceeds the "+
			"realm size limit", p.id))
	case p.notMember > 0:
		return storeError(ErrNotMember, fmt.Sprintf("holders do not accept "+
			"this node as a member for object %s", p.id))
	case p.unknownRealm > 0:
		return storeError(ErrUnknownRealm, fmt.Sprintf("no reachable node "+
			"serves the realm of object %s", p.id))
	case p.invalid > 0:
		return storeError(ErrRejected, fmt.Sprintf("holders rejected object "+
			"%s", p.id))
	case p.budget > 0:
		return storeError(ErrBudgetExceeded, fmt.Sprintf("reachable holders "+
			"are out of space for object %s", p.id))
	default:
		return storeError(ErrUnreachable, fmt.Sprintf("no node answered the "+
			"store of object %s", p.id))
	}
}

// pendingFetch tracks an originated fetch walk until an answer arrives or
// its deadline passes.
type pendingFetch struct {
	id       flid.ID
	deadline time.Time
	reply    chan getResult
}

// pendingUpdate tracks an originated update walk until enough
// acknowledgements arrive or its deadline passes.
type pendingUpdate struct {
	id   flid.ID
	want int
	acks int

	stale, rules, invalid, notHeld int

	deadline time.Time
	reply    chan updateResult
}

// failure maps the rejections collected by an update walk that was
// acknowledged by nobody to the most telling error.
func (p *pendingUpdate) failure() error {
	switch {
	case p.stale > 0:
		return storeError(ErrStaleVersion, fmt.Sprintf("holders already have "+
			"a newer history for object %s", p.id))
	case p.rules > 0:
		return storeError(ErrRuleRejected, fmt.Sprintf("the update proof for "+
			"object %s does not satisfy its rule set", p.id))
	case p.invalid > 0:
		return storeError(ErrRejected, fmt.Sprintf("holders rejected the "+
			"update of object %s", p.id))
	case p.notHeld > 0:
		return storeError(ErrNotFound, fmt.Sprintf("object %s is not stored "+
			"on any reachable node", p.id))
	default:
		return storeError(ErrUnreachable, fmt.Sprintf("no node answered the "+
			"update of object %s", p.id))
	}
}

// The following types are the messages processed by the event handler
// goroutine.
type putMsg struct {
	obj   *flo.Flo
	reply chan putResult
}

type getMsg struct {
	id    flid.ID
	reply chan getResult
}

type updateMsg struct {
	id     flid.ID
	update *wire.Update
	reply  chan updateResult
}

type deliverMsg struct {
	delivery router.Delivery
}

type neighborRepliesMsg struct {
	corr    uint64
	replies []router.PeerReply
}

type metasQueryMsg struct {
	reply chan []wire.FloMeta
}

type realmsQueryMsg struct {
	reply chan []RealmInfo
}

type cuckooQueryMsg struct {
	parent flid.ID
	reply  chan []flid.ID
}

type badgeQueryMsg struct {
	ref   ace.BadgeRef
	reply chan *ace.Badge
}

type heldQueryMsg struct {
	id    flid.ID
	reply chan *flo.Flo
}

// Store keeps replicated objects for the realms this node serves and
// answers the overlay's store, fetch, update, and synchronization traffic.
// All state is owned by a single event handler goroutine started by Run.
type Store struct {
	cfg Config
	db  *leveldb.DB

	served map[flid.ID]struct{}
	owned  map[flid.ID]struct{}

	held   map[flid.ID]*heldFlo
	realms map[flid.ID]*flo.Realm
	usage  map[flid.ID]uint64
	kids   map[flid.ID]map[flid.ID]struct{}

	pendingPuts    map[uint64]*pendingPut
	pendingFetches map[uint64]*pendingFetch
	pendingUpdates map[uint64]*pendingUpdate

	recentSyncReqs *lru.Set[flid.ID]
	badges         *lru.Map[flid.ID, *ace.Badge]

	syncProgress *progresslog.Logger

	lastSync  time.Time
	lastPrune time.Time

	msgChan chan interface{}
	wg      sync.WaitGroup
	quit    chan struct{}
}

// New returns a Store loaded with the objects persisted in the configured
// database.
func New(cfg *Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, storeError(ErrDB, "no object database configured")
	}
	if cfg.Overlay == nil {
		return nil, storeError(ErrDB, "no overlay configured")
	}

	s := &Store{
		cfg:            *cfg,
		db:             cfg.DB,
		held:           make(map[flid.ID]*heldFlo),
		realms:         make(map[flid.ID]*flo.Realm),
		usage:          make(map[flid.ID]uint64),
		kids:           make(map[flid.ID]map[flid.ID]struct{}),
		pendingPuts:    make(map[uint64]*pendingPut),
		pendingFetches: make(map[uint64]*pendingFetch),
		pendingUpdates: make(map[uint64]*pendingUpdate),
		msgChan:        make(chan interface{}, msgChanBufferSize),
		quit:           make(chan struct{}),
	}
	if s.cfg.OverProvide == 0 {
		s.cfg.OverProvide = DefaultOverProvide
	}
	if s.cfg.SyncInterval == 0 {
		s.cfg.SyncInterval = DefaultSyncInterval
	}
	if s.cfg.PruneInterval == 0 {
		s.cfg.PruneInterval = DefaultPruneInterval
	}
	if s.cfg.PendingTimeout == 0 {
		s.cfg.PendingTimeout = DefaultPendingTimeout
	}
	if s.cfg.SweepInterval == 0 {
		s.cfg.SweepInterval = DefaultSweepInterval
	}
	if s.cfg.Now == nil {
		s.cfg.Now = time.Now
	}

	if len(cfg.Realms) > 0 {
		s.served = make(map[flid.ID]struct{}, len(cfg.Realms)+
			len(cfg.OwnedRealms))
		for _, id := range cfg.Realms {
			s.served[id] = struct{}{}
		}
		// Owned realms are always served.
		for _, id := range cfg.OwnedRealms {
			s.served[id] = struct{}{}
		}
	}
	s.owned = make(map[flid.ID]struct{}, len(cfg.OwnedRealms))
	for _, id := range cfg.OwnedRealms {
		s.owned[id] = struct{}{}
	}

	s.recentSyncReqs = lru.NewSetWithDefaultTTL[flid.ID](
		maxTrackedSyncRequests, s.cfg.PendingTimeout)
	s.badges = lru.NewMapWithDefaultTTL[flid.ID, *ace.Badge](badgeCacheLimit,
		badgeCacheTTL)
	s.syncProgress = progresslog.New("Synced", log)

	now := s.cfg.Now()
	s.lastSync = now
	s.lastPrune = now

	flos, err := dbFetchAllFlos(s.db)
	if err != nil {
		return nil, err
	}
	for _, f := range flos {
		s.indexFlo(f, now)
	}
	log.Infof("Loaded %d stored objects across %d realms", len(s.held),
		len(s.usage))

	return s, nil
}

// Run starts the event handler goroutine and blocks until the passed
// context is cancelled, then shuts the store down.
func (s *Store) Run(ctx context.Context) {
	log.Trace("Starting object store")
	s.wg.Add(1)
	go s.eventHandler(ctx)

	<-ctx.Done()
	close(s.quit)
	s.wg.Wait()
	log.Trace("Object store stopped")
}

// postEvent submits a message to the event handler.  It returns false when
// the store has been shut down.
func (s *Store) postEvent(m interface{}) bool {
	select {
	case s.msgChan <- m:
		return true
	case <-s.quit:
		return false
	}
}

// Put stores the object locally when admitted and walks the overlay toward
// the object identifier offering copies until the realm's spread is
// reached.  It returns the number of copies known to have been placed,
// including the local one.  A non-zero count with a nil error is
// best-effort durability, not a replication guarantee.
func (s *Store) Put(ctx context.Context, f *flo.Flo) (int, error) {
	reply := make(chan putResult, 1)
	if !s.postEvent(&putMsg{obj: f, reply: reply}) {
		return 0, storeError(ErrClosed, "store is shut down")
	}
	select {
	case res := <-reply:
		return res.placements, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.quit:
		return 0, storeError(ErrClosed, "store is shut down")
	}
}

// Get returns the object with the given identifier, from local storage when
// held and otherwise fetched from the first holder a walk toward the
// identifier encounters.
func (s *Store) Get(ctx context.Context, id flid.ID) (*flo.Flo, error) {
	reply := make(chan getResult, 1)
	if !s.postEvent(&getMsg{id: id, reply: reply}) {
		return nil, storeError(ErrClosed, "store is shut down")
	}
	select {
	case res := <-reply:
		return res.flo, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.quit:
		return nil, storeError(ErrClosed, "store is shut down")
	}
}

// Update appends the entry to the object's history on every reachable
// holder.  It returns the number of holders that acknowledged the append,
// including this node when it holds the object.
func (s *Store) Update(ctx context.Context, id flid.ID, u *wire.Update) (int, error) {
	reply := make(chan updateResult, 1)
	if !s.postEvent(&updateMsg{id: id, update: u, reply: reply}) {
		return 0, storeError(ErrClosed, "store is shut down")
	}
	select {
	case res := <-reply:
		return res.acks, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.quit:
		return 0, storeError(ErrClosed, "store is shut down")
	}
}

// Deliver accepts a terminal payload from the overlay.  It is the store's
// router.Config.Deliver callback, never blocks, and drops the delivery with
// a warning when the store cannot keep up.
func (s *Store) Deliver(d router.Delivery) {
	select {
	case s.msgChan <- &deliverMsg{delivery: d}:
	case <-s.quit:
	default:
		log.Warnf("Store queue full, dropping %s delivery from %s", d.Kind,
			d.From.Short())
	}
}

// NeighborReplies accepts the aggregated answers of a neighbor query.  It
// is the store's router.Config.NeighborReplies callback and never blocks.
func (s *Store) NeighborReplies(corr uint64, replies []router.PeerReply) {
	select {
	case s.msgChan <- &neighborRepliesMsg{corr: corr, replies: replies}:
	case <-s.quit:
	default:
		log.Warnf("Store queue full, dropping %d neighbor replies",
			len(replies))
	}
}

// HeldMetas returns descriptions of every object stored here, ordered by
// identifier.
func (s *Store) HeldMetas() []wire.FloMeta {
	reply := make(chan []wire.FloMeta, 1)
	if !s.postEvent(&metasQueryMsg{reply: reply}) {
		return nil
	}
	select {
	case metas := <-reply:
		return metas
	case <-s.quit:
		return nil
	}
}

// Realms returns the realms whose definitions are held here, ordered by
// identifier.
func (s *Store) Realms() []RealmInfo {
	reply := make(chan []RealmInfo, 1)
	if !s.postEvent(&realmsQueryMsg{reply: reply}) {
		return nil
	}
	select {
	case infos := <-reply:
		return infos
	case <-s.quit:
		return nil
	}
}

// CuckooIDs returns the identifiers of held objects attached to the given
// parent object, ordered by identifier.
func (s *Store) CuckooIDs(parent flid.ID) []flid.ID {
	reply := make(chan []flid.ID, 1)
	if !s.postEvent(&cuckooQueryMsg{parent: parent, reply: reply}) {
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-s.quit:
		return nil
	}
}

// ResolveBadge returns the held badge satisfying the reference, or nil when
// no such badge is stored.  The returned badge must not be modified.
func (s *Store) ResolveBadge(ref ace.BadgeRef) *ace.Badge {
	reply := make(chan *ace.Badge, 1)
	if !s.postEvent(&badgeQueryMsg{ref: ref, reply: reply}) {
		return nil
	}
	select {
	case badge := <-reply:
		return badge
	case <-s.quit:
		return nil
	}
}

// HeldFlo returns a copy of the object stored under the given identifier,
// or nil when it is not held.
func (s *Store) HeldFlo(id flid.ID) *flo.Flo {
	reply := make(chan *flo.Flo, 1)
	if !s.postEvent(&heldQueryMsg{id: id, reply: reply}) {
		return nil
	}
	select {
	case f := <-reply:
		return f
	case <-s.quit:
		return nil
	}
}

// eventHandler processes every message posted to the store and owns all of
// its state.  It must be run as a goroutine.
func (s *Store) eventHandler(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

out:
	for {
		select {
		case m := <-s.msgChan:
			switch m := m.(type) {
			case *putMsg:
				s.handlePut(m)

			case *getMsg:
				s.handleGet(m)

			case *updateMsg:
				s.handleUpdate(m)

			case *deliverMsg:
				s.handleDelivery(m.delivery)

			case *neighborRepliesMsg:
				s.handleNeighborReplies(m.corr, m.replies)

			case *metasQueryMsg:
				m.reply <- s.heldMetas()

			case *realmsQueryMsg:
				m.reply <- s.realmInfos()

			case *cuckooQueryMsg:
				m.reply <- s.cuckooIDs(m.parent)

			case *badgeQueryMsg:
				m.reply <- s.resolveBadge(m.ref)

			case *heldQueryMsg:
				var snap *flo.Flo
				if h := s.held[m.id]; h != nil {
					snap, _ = snapshotFlo(h.flo)
				}
				m.reply <- snap

			default:
				log.Warnf("Invalid message type in store event handler: %T", m)
			}

		case <-ticker.C:
			s.handleTick()

		case <-ctx.Done():
			break out
		}
	}

	log.Trace("Store event handler done")
}

// heldMetas collects descriptions of every held object ordered by
// identifier.
func (s *Store) heldMetas() []wire.FloMeta {
	metas := make([]wire.FloMeta, 0, len(s.held))
	for _, h := range s.held {
		meta, err := h.flo.Meta()
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return bytes.Compare(metas[i].ID[:], metas[j].ID[:]) < 0
	})
	return metas
}

// realmInfos collects the held realm definitions ordered by identifier.
func (s *Store) realmInfos() []RealmInfo {
	counts := make(map[flid.ID]int, len(s.usage))
	for _, h := range s.held {
		counts[h.realmID]++
	}
	infos := make([]RealmInfo, 0, len(s.realms))
	for id, def := range s.realms {
		infos = append(infos, RealmInfo{
			ID:       id,
			Name:     def.Name,
			Spread:   def.Config.Spread,
			MaxSpace: def.Config.MaxSpace,
			Usage:    s.usage[id],
			Objects:  counts[id],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return bytes.Compare(infos[i].ID[:], infos[j].ID[:]) < 0
	})
	return infos
}

// cuckooIDs collects the held objects attached to the parent ordered by
// identifier.
func (s *Store) cuckooIDs(parent flid.ID) []flid.ID {
	set := s.kids[parent]
	if len(set) == 0 {
		return nil
	}
	ids := make([]flid.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// servesRealm reports whether objects of the given realm are accepted
// here.
func (s *Store) servesRealm(realmID flid.ID) bool {
	if s.served == nil {
		return true
	}
	_, ok := s.served[realmID]
	return ok
}

// ownsRealm reports whether the realm's objects bypass the space budget.
func (s *Store) ownsRealm(realmID flid.ID) bool {
	_, ok := s.owned[realmID]
	return ok
}

// realmSpread returns the number of copies the realm targets per object,
// falling back to the default when no held definition specifies one.
func (s *Store) realmSpread(realmID flid.ID) int {
	if def := s.realms[realmID]; def != nil && def.Config.Spread > 0 {
		return int(def.Config.Spread)
	}
	return DefaultSpread
}

// offerCap returns the number of candidates a store walk for the realm
// offers copies to before giving up on reaching the spread.
func (s *Store) offerCap(realmID flid.ID) int {
	return s.realmSpread(realmID) * int(s.cfg.OverProvide)
}

// snapshotFlo returns an independent copy of the object that is safe to
// hand outside the event handler goroutine.
func snapshotFlo(f *flo.Flo) (*flo.Flo, error) {
	serialized, err := f.Bytes()
	if err != nil {
		return nil, storeError(ErrInvalidFlo, fmt.Sprintf("object %s does "+
			"not serialize: %v", f.ID(), err))
	}
	cp := make([]byte, len(serialized))
	copy(cp, serialized)
	return flo.NewFloFromBytes(cp)
}
