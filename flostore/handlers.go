// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flostore

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/ineiti/fledger/router"
	"github.com/ineiti/fledger/wire"
)

// indexFlo records the object in the in-memory maps, replacing any
// previous copy under the same identifier.
func (s *Store) indexFlo(f *flo.Flo, now time.Time) {
	size, err := f.Size()
	if err != nil {
		log.Warnf("Not indexing object that does not serialize: %v", err)
		return
	}
	id := f.ID()
	realmID := f.WireFlo().Realm

	if old := s.held[id]; old != nil {
		if s.usage[old.realmID] >= old.size {
			s.usage[old.realmID] -= old.size
		} else {
			s.usage[old.realmID] = 0
		}
	}
	s.held[id] = &heldFlo{
		flo:      f,
		size:     uint64(size),
		realmID:  realmID,
		storedAt: now,
	}
	s.usage[realmID] += uint64(size)

	if parent, ok := f.CuckooParent(); ok {
		if s.kids[parent] == nil {
			s.kids[parent] = make(map[flid.ID]struct{})
		}
		s.kids[parent][id] = struct{}{}
	}
	if f.IsRealm() {
		def, err := flo.ParseRealmFlo(f)
		if err != nil {
			log.Warnf("Held realm object %s does not parse: %v", id, err)
		} else {
			s.realms[id] = def
		}
	}
	s.badges.Delete(id)
}

// storeFlo persists the object and records it in the in-memory maps.
func (s *Store) storeFlo(f *flo.Flo, now time.Time) error {
	if err := dbPutFlo(s.db, f); err != nil {
		return err
	}
	s.indexFlo(f, now)
	return nil
}

// removeFlo discards the held object from the database and the in-memory
// maps.  Objects attached to it are discarded by a later prune pass.
func (s *Store) removeFlo(id flid.ID) {
	h := s.held[id]
	if h == nil {
		return
	}
	if err := dbRemoveFlo(s.db, id); err != nil {
		log.Errorf("Failed to remove object %s from the database: %v", id, err)
	}
	delete(s.held, id)
	if s.usage[h.realmID] >= h.size {
		s.usage[h.realmID] -= h.size
	} else {
		s.usage[h.realmID] = 0
	}
	if s.usage[h.realmID] == 0 {
		delete(s.usage, h.realmID)
	}
	if parent, ok := h.flo.CuckooParent(); ok {
		delete(s.kids[parent], id)
		if len(s.kids[parent]) == 0 {
			delete(s.kids, parent)
		}
	}
	if h.flo.IsRealm() {
		delete(s.realms, id)
	}
	s.badges.Delete(id)
}

// checkAdmit reports whether the object fits this node's serve list, the
// realm's size limit, and the realm's space budget.  The realm definition
// the checks ran against is returned so callers can apply further policy.
func (s *Store) checkAdmit(f *flo.Flo) (*flo.Realm, error) {
	realmID := f.WireFlo().Realm
	if !s.servesRealm(realmID) {
		return nil, storeError(ErrUnknownRealm, fmt.Sprintf("realm %s is "+
			"not served here", realmID))
	}
	def := s.realms[realmID]
	if def == nil {
		// A realm-defining object carries its own definition and is how a
		// realm becomes known here in the first place.
		if !f.IsRealm() {
			return nil, storeError(ErrUnknownRealm, fmt.Sprintf("no "+
				"definition held for realm %s", realmID))
		}
		var err error
		def, err = flo.ParseRealmFlo(f)
		if err != nil {
			return nil, storeError(ErrInvalidFlo, fmt.Sprintf("realm "+
				"object %s does not parse: %v", f.ID(), err))
		}
	}

	size, err := f.Size()
	if err != nil {
		return nil, storeError(ErrInvalidFlo, fmt.Sprintf("object does not "+
			"serialize: %v", err))
	}
	if err := def.CheckFloSize(size); err != nil {
		return nil, storeError(ErrTooLarge, err.Error())
	}

	if !s.ownsRealm(realmID) && def.Config.MaxSpace > 0 {
		var oldSize uint64
		if h := s.held[f.ID()]; h != nil {
			oldSize = h.size
		}
		if s.usage[realmID]+uint64(size)-oldSize > def.Config.MaxSpace {
			return nil, storeError(ErrBudgetExceeded, fmt.Sprintf("storing "+
				"%d bytes would exceed the %d byte budget of realm %s", size,
				def.Config.MaxSpace, realmID))
		}
	}
	return def, nil
}

// checkMember reports whether the realm accepts the given originator.
func checkMember(def *flo.Realm, origin flid.ID) error {
	if !def.AcceptsMember(origin) {
		return storeError(ErrNotMember, fmt.Sprintf("%s is not a member of "+
			"the realm", origin))
	}
	return nil
}

// verifyFlo validates the object's structure and the proof of every
// history entry against the badges held here.
func (s *Store) verifyFlo(f *flo.Flo) error {
	if err := flo.VerifyHistory(f.WireFlo(), s.resolveBadge); err != nil {
		return storeError(ErrInvalidFlo, fmt.Sprintf("object %s fails "+
			"verification: %v", f.ID(), err))
	}
	return nil
}

// resolveBadge returns the held badge satisfying the reference.  It is the
// ace.BadgeResolver used for every proof evaluation and may only be called
// from the event handler goroutine.
func (s *Store) resolveBadge(ref ace.BadgeRef) *ace.Badge {
	badge, ok := s.badges.Get(ref.ID)
	if !ok {
		h := s.held[ref.ID]
		if h == nil {
			return nil
		}
		parsed, err := flo.ParseBadgeFlo(h.flo)
		if err != nil {
			log.Debugf("Object %s referenced as a badge: %v", ref.ID, err)
			return nil
		}
		s.badges.Put(ref.ID, parsed)
		badge = parsed
	}
	if !ref.Accepts(badge.Version) {
		return nil
	}
	return badge
}

// declineCode maps an admission error to the code sent back to the store
// walk's originator.
func declineCode(err error) wire.DeclineCode {
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		return wire.DeclineBudget
	case errors.Is(err, ErrUnknownRealm):
		return wire.DeclineUnknownRealm
	case errors.Is(err, ErrTooLarge):
		return wire.DeclineTooLarge
	case errors.Is(err, ErrNotMember):
		return wire.DeclineMembership
	default:
		return wire.DeclineInvalid
	}
}

// rejectCode maps an append failure to the code sent back to the update
// walk's originator.
func rejectCode(err error) wire.RejectCode {
	switch {
	case errors.Is(err, flo.ErrStaleVersion):
		return wire.RejectStale
	case errors.Is(err, flo.ErrRuleRejected):
		return wire.RejectRules
	default:
		return wire.RejectInvalid
	}
}

// rejectReason renders an append failure as a reason string that fits the
// wire limit.
func rejectReason(err error) string {
	reason := err.Error()
	if len(reason) > wire.MaxRejectReasonLen {
		reason = reason[:wire.MaxRejectReasonLen]
	}
	return reason
}

// convertFloErr converts an object model error from a local append into
// the matching store error.
func convertFloErr(err error) error {
	switch {
	case errors.Is(err, flo.ErrStaleVersion):
		return storeError(ErrStaleVersion, err.Error())
	case errors.Is(err, flo.ErrRuleRejected):
		return storeError(ErrRuleRejected, err.Error())
	case errors.Is(err, flo.ErrTooLarge):
		return storeError(ErrTooLarge, err.Error())
	default:
		return storeError(ErrRejected, err.Error())
	}
}

// handlePut stores the object locally when admitted and starts the walk
// that offers copies to the nodes closest to the object identifier.
func (s *Store) handlePut(m *putMsg) {
	now := s.cfg.Now()
	f := m.obj
	id := f.ID()

	if err := s.verifyFlo(f); err != nil {
		m.reply <- putResult{err: err}
		return
	}

	placed := 0
	def, admitErr := s.checkAdmit(f)
	if admitErr == nil {
		admitErr = checkMember(def, s.cfg.Self)
	}
	switch {
	case admitErr == nil:
		if h := s.held[id]; h != nil {
			s.mergeHeld(h, f.WireFlo(), now)
			placed = 1
		} else if err := s.storeFlo(f, now); err != nil {
			m.reply <- putResult{err: err}
			return
		} else {
			placed = 1
		}

	case errors.Is(admitErr, ErrTooLarge), errors.Is(admitErr, ErrNotMember):
		// These verdicts follow from the realm definition and the object
		// alone, so every holder would repeat them.
		m.reply <- putResult{err: admitErr}
		return

	default:
		// A full budget or a missing realm definition is local, so remote
		// placement is still worth attempting.
		log.Debugf("Not storing own object %s locally: %v", id, admitErr)
	}

	want := s.realmSpread(f.WireFlo().Realm) - placed
	if want <= 0 {
		m.reply <- putResult{placements: placed}
		return
	}
	if want > wire.MaxHopBudget {
		want = wire.MaxHopBudget
	}

	if len(s.cfg.Overlay.KnownNodes()) == 0 {
		res := putResult{placements: placed}
		if placed == 0 {
			res.err = storeError(ErrUnreachable, fmt.Sprintf("no nodes "+
				"known to offer object %s to", id))
		}
		m.reply <- res
		return
	}

	offer := wire.NewMsgStoreOffer(f.WireFlo(), uint8(want))
	corr, err := s.cfg.Overlay.SendClosest(id, offer)
	if err != nil {
		res := putResult{placements: placed}
		if placed == 0 {
			res.err = err
		}
		m.reply <- res
		return
	}
	s.pendingPuts[corr] = &pendingPut{
		id:       id,
		want:     want,
		placed:   placed,
		deadline: now.Add(s.cfg.PendingTimeout),
		reply:    m.reply,
	}
}

// handleGet answers from local storage when the object is held and
// otherwise starts the walk that fetches it from the first holder along
// the way.
func (s *Store) handleGet(m *getMsg) {
	if h := s.held[m.id]; h != nil {
		snap, err := snapshotFlo(h.flo)
		m.reply <- getResult{flo: snap, err: err}
		return
	}
	if len(s.cfg.Overlay.KnownNodes()) == 0 {
		m.reply <- getResult{err: storeError(ErrNotFound, fmt.Sprintf(
			"object %s is not stored locally and no nodes are known", m.id))}
		return
	}

	req := wire.NewMsgFetchRequest(&m.id)
	corr, err := s.cfg.Overlay.SendClosest(m.id, req)
	if err != nil {
		m.reply <- getResult{err: err}
		return
	}
	s.pendingFetches[corr] = &pendingFetch{
		id:       m.id,
		deadline: s.cfg.Now().Add(s.cfg.PendingTimeout),
		reply:    m.reply,
	}
}

// handleUpdate applies the entry to the local copy when the object is held
// and starts the walk that brings it to every other reachable holder.
func (s *Store) handleUpdate(m *updateMsg) {
	now := s.cfg.Now()
	acks := 0
	spread := DefaultSpread

	if h := s.held[m.id]; h != nil {
		spread = s.realmSpread(h.realmID)
		if def := s.realms[h.realmID]; def != nil {
			if err := checkMember(def, s.cfg.Self); err != nil {
				m.reply <- updateResult{err: err}
				return
			}
		}
		if _, err := s.applyUpdate(h, m.update, now); err != nil {
			// Every holder has the same history, so a local refusal is
			// what the walk would come back with.
			m.reply <- updateResult{err: convertFloErr(err)}
			return
		}
		acks = 1
	}

	if len(s.cfg.Overlay.KnownNodes()) == 0 {
		res := updateResult{acks: acks}
		if acks == 0 {
			res.err = storeError(ErrNotFound, fmt.Sprintf("object %s is "+
				"not stored locally and no nodes are known", m.id))
		}
		m.reply <- res
		return
	}

	req := wire.NewMsgUpdateRequest(&m.id, m.update)
	corr, err := s.cfg.Overlay.SendClosest(m.id, req)
	if err != nil {
		res := updateResult{acks: acks}
		if acks == 0 {
			res.err = err
		}
		m.reply <- res
		return
	}
	s.pendingUpdates[corr] = &pendingUpdate{
		id:       m.id,
		want:     spread,
		acks:     acks,
		deadline: now.Add(s.cfg.PendingTimeout),
		reply:    m.reply,
	}
}

// applyUpdate verifies the entry against the held copy and stores the
// extended history.  The held copy is only replaced when the append
// succeeds and the result still fits the realm's size limit.  The returned
// version is the object version after the append.
func (s *Store) applyUpdate(h *heldFlo, u *wire.Update, now time.Time) (uint32, error) {
	prev := h.flo.WireFlo()
	cand := *prev
	cand.History = make([]wire.Update, len(prev.History), len(prev.History)+1)
	copy(cand.History, prev.History)

	cf := flo.NewFlo(&cand)
	if err := cf.AppendUpdate(u, s.resolveBadge); err != nil {
		return 0, err
	}
	if def := s.realms[h.realmID]; def != nil {
		size, err := cf.Size()
		if err != nil {
			return 0, err
		}
		if err := def.CheckFloSize(size); err != nil {
			return 0, err
		}
	}
	if err := s.storeFlo(cf, now); err != nil {
		return 0, err
	}
	return cand.Version(), nil
}

// handleDelivery dispatches a terminal payload delivered by the overlay.
func (s *Store) handleDelivery(d router.Delivery) {
	switch msg := d.Msg.(type) {
	case *wire.MsgStoreOffer:
		s.handleStoreOffer(d, msg)

	case *wire.MsgStoreAck:
		s.handleStoreAck(d, msg)

	case *wire.MsgStoreDecline:
		s.handleStoreDecline(d, msg)

	case *wire.MsgFetchRequest:
		s.handleFetchRequest(d, msg)

	case *wire.MsgFetchReply:
		s.handleFetchReply(d, msg)

	case *wire.MsgNotFound:
		s.handleNotFound(d, msg)

	case *wire.MsgUpdateRequest:
		s.handleUpdateRequest(d, msg)

	case *wire.MsgUpdateAck:
		s.handleUpdateAck(d, msg)

	case *wire.MsgUpdateReject:
		s.handleUpdateReject(d, msg)

	case *wire.MsgSyncMetas:
		s.handleSyncMetas(d, msg)

	default:
		log.Debugf("Ignoring %s delivery from %s", d.Msg.Command(),
			d.From.Short())
	}
}

// handleStoreOffer decides whether to keep the offered object, answers the
// originator, and passes the offer along while more copies are wanted.
func (s *Store) handleStoreOffer(d router.Delivery, msg *wire.MsgStoreOffer) {
	now := s.cfg.Now()
	f := flo.NewFlo(&msg.Flo)
	id := f.ID()
	remaining := msg.Remaining

	var admitErr error
	if h := s.held[id]; h != nil {
		// Holding a copy already counts as a placement.  Merge any newer
		// history the offer carries.
		s.mergeHeld(h, &msg.Flo, now)
	} else {
		admitErr = s.admitOffer(f, d.Origin, now)
	}

	if admitErr == nil {
		if remaining > 0 {
			remaining--
		}
		version := s.held[id].flo.WireFlo().Version()
		ack := wire.NewMsgStoreAck(&id, version)
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, ack); err != nil {
			log.Debugf("Failed to acknowledge object %s to %s: %v", id,
				d.Origin.Short(), err)
		}
	} else {
		log.Debugf("Declining object %s offered by %s: %v", id,
			d.Origin.Short(), admitErr)
		decline := wire.NewMsgStoreDecline(&id, declineCode(admitErr))
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, decline); err != nil {
			log.Debugf("Failed to decline object %s to %s: %v", id,
				d.Origin.Short(), err)
		}
	}

	if d.Terminal || remaining == 0 {
		return
	}
	if len(d.Env.Route.Visited) >= s.offerCap(msg.Flo.Realm) {
		return
	}
	cont := wire.NewMsgStoreOffer(&msg.Flo, remaining)
	if err := s.cfg.Overlay.ContinueClosest(d.Env, cont); err != nil {
		log.Debugf("Failed to continue store walk for %s: %v", id, err)
	}
}

// admitOffer runs the full admission of an object offered by a store walk
// and stores it on success.
func (s *Store) admitOffer(f *flo.Flo, origin flid.ID, now time.Time) error {
	def, err := s.checkAdmit(f)
	if err != nil {
		return err
	}
	if err := checkMember(def, origin); err != nil {
		return err
	}
	if err := s.verifyFlo(f); err != nil {
		return err
	}
	return s.storeFlo(f, now)
}

// mergeHeld reconciles the held object with a remote copy, keeping
// whichever longest verifiable history wins, and refreshes the holder-local
// expiry either way.
func (s *Store) mergeHeld(h *heldFlo, remote *wire.Flo, now time.Time) {
	merged, changed := flo.Reconcile(h.flo.WireFlo(), remote, s.resolveBadge)
	if !changed {
		h.storedAt = now
		return
	}
	mf := flo.NewFlo(merged)
	if def := s.realms[h.realmID]; def != nil {
		size, err := mf.Size()
		if err != nil || def.CheckFloSize(size) != nil {
			log.Debugf("Not merging oversized history for object %s",
				h.flo.ID())
			return
		}
	}
	if err := s.storeFlo(mf, now); err != nil {
		log.Errorf("Failed to store merged object %s: %v", mf.ID(), err)
		return
	}
	log.Debugf("Merged object %s to version %d", mf.ID(),
		merged.Version())
}

// handleStoreAck counts a confirmed placement toward the matching store
// walk.
func (s *Store) handleStoreAck(d router.Delivery, msg *wire.MsgStoreAck) {
	rec := s.pendingPuts[d.Corr]
	if rec == nil || rec.id != msg.ID {
		log.Debugf("Ignoring unsolicited store ack for %s from %s", msg.ID,
			d.From.Short())
		return
	}
	rec.placed++
	rec.want--
	log.Debugf("Object %s placed at %s (version %d)", msg.ID,
		d.Origin.Short(), msg.Version)
	if rec.want <= 0 {
		s.completePut(d.Corr)
	}
}

// handleStoreDecline records a refused placement toward the matching store
// walk.
func (s *Store) handleStoreDecline(d router.Delivery, msg *wire.MsgStoreDecline) {
	rec := s.pendingPuts[d.Corr]
	if rec == nil || rec.id != msg.ID {
		log.Debugf("Ignoring unsolicited store decline for %s from %s",
			msg.ID, d.From.Short())
		return
	}
	switch msg.Code {
	case wire.DeclineBudget:
		rec.budget++
	case wire.DeclineUnknownRealm:
		rec.unknownRealm++
	case wire.DeclineTooLarge:
		rec.tooLarge++
	case wire.DeclineMembership:
		rec.notMember++
	default:
		rec.invalid++
	}
	log.Debugf("Store of %s declined by %s: %s", msg.ID, d.Origin.Short(),
		msg.Code)
}

// completePut finishes the store walk with whatever it has collected.
func (s *Store) completePut(corr uint64) {
	rec := s.pendingPuts[corr]
	if rec == nil {
		return
	}
	delete(s.pendingPuts, corr)
	res := putResult{placements: rec.placed}
	if rec.placed == 0 {
		res.err = rec.failure()
	}
	rec.reply <- res
}

// handleFetchRequest answers a fetch walk from local storage, reports the
// definitive miss at the end of the walk, and passes the request along
// otherwise.
func (s *Store) handleFetchRequest(d router.Delivery, msg *wire.MsgFetchRequest) {
	if h := s.held[msg.ID]; h != nil {
		// The walk ends at the first holder.
		reply := wire.NewMsgFetchReply(h.flo.WireFlo())
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, reply); err != nil {
			log.Debugf("Failed to send object %s to %s: %v", msg.ID,
				d.Origin.Short(), err)
		}
		return
	}
	if d.Terminal {
		notFound := wire.NewMsgNotFound(&msg.ID)
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, notFound); err != nil {
			log.Debugf("Failed to report missing object %s to %s: %v",
				msg.ID, d.Origin.Short(), err)
		}
		return
	}
	if err := s.cfg.Overlay.ContinueClosest(d.Env, msg); err != nil {
		log.Debugf("Failed to continue fetch walk for %s: %v", msg.ID, err)
	}
}

// handleFetchReply completes the matching fetch walk.  Replies that match
// no request carry neighbor synchronization deliveries and are merged into
// local storage instead.
func (s *Store) handleFetchReply(d router.Delivery, msg *wire.MsgFetchReply) {
	f := flo.NewFlo(&msg.Flo)
	rec := s.pendingFetches[d.Corr]
	if rec != nil && rec.id == f.ID() {
		if err := flo.CheckStructure(f.WireFlo()); err != nil {
			log.Debugf("Malformed object %s from %s: %v", rec.id,
				d.From.Short(), err)
			return
		}
		s.completeFetch(d.Corr, f, nil)
		return
	}
	s.mergeSyncFlo(f, d.Origin)
}

// handleNotFound completes the matching fetch walk with a definitive miss.
func (s *Store) handleNotFound(d router.Delivery, msg *wire.MsgNotFound) {
	rec := s.pendingFetches[d.Corr]
	if rec == nil || rec.id != msg.ID {
		log.Debugf("Ignoring unsolicited not-found for %s from %s", msg.ID,
			d.From.Short())
		return
	}
	s.completeFetch(d.Corr, nil, storeError(ErrNotFound, fmt.Sprintf(
		"object %s is not stored on any reachable node", msg.ID)))
}

// completeFetch finishes the fetch walk.
func (s *Store) completeFetch(corr uint64, f *flo.Flo, err error) {
	rec := s.pendingFetches[corr]
	if rec == nil {
		return
	}
	delete(s.pendingFetches, corr)
	rec.reply <- getResult{flo: f, err: err}
}

// handleUpdateRequest applies the entry to the local copy when the object
// is held, answers the originator, and passes the request along so every
// holder on the walk sees it.
func (s *Store) handleUpdateRequest(d router.Delivery, msg *wire.MsgUpdateRequest) {
	now := s.cfg.Now()
	if h := s.held[msg.ID]; h != nil {
		var reply wire.Message
		def := s.realms[h.realmID]
		if def != nil && !def.AcceptsMember(d.Origin) {
			reply = wire.NewMsgUpdateReject(&msg.ID, wire.RejectRules,
				"origin is not a realm member")
		} else if version, err := s.applyUpdate(h, &msg.Update, now); err != nil {
			log.Debugf("Rejecting update of %s from %s: %v", msg.ID,
				d.Origin.Short(), err)
			reply = wire.NewMsgUpdateReject(&msg.ID, rejectCode(err),
				rejectReason(err))
		} else {
			reply = wire.NewMsgUpdateAck(&msg.ID, version)
		}
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, reply); err != nil {
			log.Debugf("Failed to answer update of %s to %s: %v", msg.ID,
				d.Origin.Short(), err)
		}
	} else if d.Terminal {
		reject := wire.NewMsgUpdateReject(&msg.ID, wire.RejectNotHeld, "")
		if err := s.cfg.Overlay.SendDirect(d.Origin, d.Corr, reject); err != nil {
			log.Debugf("Failed to answer update of %s to %s: %v", msg.ID,
				d.Origin.Short(), err)
		}
	}

	if !d.Terminal {
		if err := s.cfg.Overlay.ContinueClosest(d.Env, msg); err != nil {
			log.Debugf("Failed to continue update walk for %s: %v", msg.ID,
				err)
		}
	}
}

// handleUpdateAck counts an acknowledged append toward the matching update
// walk.
func (s *Store) handleUpdateAck(d router.Delivery, msg *wire.MsgUpdateAck) {
	rec := s.pendingUpdates[d.Corr]
	if rec == nil || rec.id != msg.ID {
		log.Debugf("Ignoring unsolicited update ack for %s from %s", msg.ID,
			d.From.Short())
		return
	}
	rec.acks++
	log.Debugf("Update of %s acknowledged by %s (version %d)", msg.ID,
		d.Origin.Short(), msg.Version)
	if rec.acks >= rec.want {
		s.completeUpdate(d.Corr)
	}
}

// handleUpdateReject records a refused append toward the matching update
// walk.  A not-held answer comes from the end of the walk and completes
// it.
func (s *Store) handleUpdateReject(d router.Delivery, msg *wire.MsgUpdateReject) {
	rec := s.pendingUpdates[d.Corr]
	if rec == nil || rec.id != msg.ID {
		log.Debugf("Ignoring unsolicited update reject for %s from %s",
			msg.ID, d.From.Short())
		return
	}
	switch msg.Code {
	case wire.RejectStale:
		rec.stale++
	case wire.RejectRules:
		rec.rules++
	case wire.RejectNotHeld:
		rec.notHeld++
	default:
		rec.invalid++
	}
	log.Debugf("Update of %s rejected by %s: %s (%s)", msg.ID,
		d.Origin.Short(), msg.Code, msg.Reason)
	if msg.Code == wire.RejectNotHeld {
		s.completeUpdate(d.Corr)
	}
}

// completeUpdate finishes the update walk with whatever it has collected.
func (s *Store) completeUpdate(corr uint64) {
	rec := s.pendingUpdates[corr]
	if rec == nil {
		return
	}
	delete(s.pendingUpdates, corr)
	res := updateResult{acks: rec.acks}
	if rec.acks == 0 {
		res.err = rec.failure()
	}
	rec.reply <- res
}

// mergeSyncFlo stores or reconciles an object delivered by the neighbor
// synchronization flow.
func (s *Store) mergeSyncFlo(f *flo.Flo, origin flid.ID) {
	now := s.cfg.Now()
	id := f.ID()
	if h := s.held[id]; h != nil {
		s.mergeHeld(h, f.WireFlo(), now)
		return
	}

	// Replication does not re-check realm membership.  The history carries
	// its own authorization and was admitted by the announcing holder.
	if _, err := s.checkAdmit(f); err != nil {
		log.Debugf("Not storing synced object %s from %s: %v", id,
			origin.Short(), err)
		return
	}
	if err := s.verifyFlo(f); err != nil {
		log.Debugf("Not storing synced object %s from %s: %v", id,
			origin.Short(), err)
		return
	}
	if err := s.storeFlo(f, now); err != nil {
		log.Errorf("Failed to store synced object %s: %v", id, err)
		return
	}
	log.Debugf("Stored synced object %s from %s", id, origin.Short())
	s.syncProgress.LogProgress(f, false)
}

// handleSyncMetas answers a neighbor's announcement with the identifiers
// of the objects this node lacks or finds outdated.
func (s *Store) handleSyncMetas(d router.Delivery, msg *wire.MsgSyncMetas) {
	req := wire.NewMsgSyncRequest(&msg.Realm)
	if s.servesRealm(msg.Realm) {
		for i := range msg.Metas {
			meta := &msg.Metas[i]
			if h := s.held[meta.ID]; h != nil &&
				h.flo.WireFlo().Version() >= meta.Version {
				continue
			}
			if s.recentSyncReqs.Contains(meta.ID) {
				continue
			}
			if err := req.AddID(&meta.ID); err != nil {
				break
			}
			s.recentSyncReqs.Put(meta.ID)
		}
	}

	// Reply even when nothing is wanted so the querier's aggregation does
	// not wait out its timeout.
	if err := s.cfg.Overlay.ReplyNeighbor(d.Origin, d.Corr, req); err != nil {
		log.Debugf("Failed to answer sync query from %s: %v",
			d.Origin.Short(), err)
	}
}

// handleNeighborReplies serves the objects neighbors asked for in answer
// to a synchronization announcement.  Each object travels in its own
// direct message under a fresh correlation number.
func (s *Store) handleNeighborReplies(corr uint64, replies []router.PeerReply) {
	for i := range replies {
		req, ok := replies[i].Msg.(*wire.MsgSyncRequest)
		if !ok {
			log.Debugf("Ignoring %s neighbor reply from %s",
				replies[i].Msg.Command(), replies[i].From.Short())
			continue
		}
		for j := range req.IDs {
			h := s.held[req.IDs[j]]
			if h == nil {
				continue
			}
			reply := wire.NewMsgFetchReply(h.flo.WireFlo())
			err := s.cfg.Overlay.SendDirect(replies[i].From, rand.Uint64(),
				reply)
			if err != nil {
				log.Debugf("Failed to send object %s to %s: %v",
					req.IDs[j], replies[i].From.Short(), err)
			}
		}
	}
}

// syncTick announces descriptions of every held object to the direct
// neighbors, one query per realm.
func (s *Store) syncTick() {
	if len(s.held) == 0 {
		return
	}
	metasByRealm := make(map[flid.ID][]wire.FloMeta)
	for _, h := range s.held {
		meta, err := h.flo.Meta()
		if err != nil {
			continue
		}
		metasByRealm[h.realmID] = append(metasByRealm[h.realmID], meta)
	}
	for realmID, metas := range metasByRealm {
		sort.Slice(metas, func(i, j int) bool {
			return bytes.Compare(metas[i].ID[:], metas[j].ID[:]) < 0
		})
		msg := wire.NewMsgSyncMetas(&realmID)
		for i := range metas {
			if err := msg.AddMeta(&metas[i]); err != nil {
				break
			}
		}
		if _, err := s.cfg.Overlay.NeighborQuery(msg); err != nil {
			log.Debugf("Failed to announce %d objects of realm %s: %v",
				len(metas), realmID, err)
		}
	}
}

// pruneTick discards objects whose holder-local lifetime has passed and
// objects whose parent is no longer held.
func (s *Store) pruneTick(now time.Time) {
	var expired []flid.ID
	for id, h := range s.held {
		if ttl, ok := h.flo.TTL(); ok {
			if now.Sub(h.storedAt) >= ttl {
				expired = append(expired, id)
			}
			continue
		}
		if parent, ok := h.flo.CuckooParent(); ok {
			if _, held := s.held[parent]; !held {
				expired = append(expired, id)
			}
		}
	}
	for _, id := range expired {
		log.Debugf("Pruning object %s", id)
		s.removeFlo(id)
	}
	if len(expired) > 0 {
		log.Infof("Pruned %d expired objects", len(expired))
	}
}

// handleTick sweeps request deadlines and runs the periodic duties that
// are due.
func (s *Store) handleTick() {
	now := s.cfg.Now()

	for corr, rec := range s.pendingPuts {
		if now.After(rec.deadline) {
			s.completePut(corr)
		}
	}
	for corr, rec := range s.pendingFetches {
		if now.After(rec.deadline) {
			s.completeFetch(corr, nil, storeError(ErrUnreachable,
				fmt.Sprintf("no answer for object %s", rec.id)))
		}
	}
	for corr, rec := range s.pendingUpdates {
		if now.After(rec.deadline) {
			s.completeUpdate(corr)
		}
	}

	if now.Sub(s.lastSync) >= s.cfg.SyncInterval {
		s.lastSync = now
		s.syncTick()
	}
	if now.Sub(s.lastPrune) >= s.cfg.PruneInterval {
		s.lastPrune = now
		s.pruneTick(now)
	}
}
