// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kademlia

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ineiti/fledger/flid"
)

// snapshotVersion is the current file format version written by
// SaveSnapshot.
const snapshotVersion = 1

// serializedNode is used to represent the serializable state of a single
// confirmed record.
type serializedNode struct {
	ID            string
	LastConfirmed int64
}

// serializedTable is used to represent the serializable state of a routing
// table instance.  Only confirmed records are serialized since pending
// candidates were never vetted.
type serializedTable struct {
	Version int
	Self    string
	Nodes   []serializedNode
}

// SaveSnapshot writes the confirmed records to the given file so they can
// be read back in at next run.  The write goes to a temporary file first
// and is then moved into place.  Nothing is written when the table has not
// changed since the last save.
func (t *Table) SaveSnapshot(path string) error {
	if !t.dirty {
		return nil
	}

	st := serializedTable{
		Version: snapshotVersion,
		Self:    t.cfg.Self.String(),
		Nodes:   make([]serializedNode, 0, t.count),
	}
	for _, b := range t.buckets {
		for _, n := range b.active {
			st.Nodes = append(st.Nodes, serializedNode{
				ID:            n.id.String(),
				LastConfirmed: n.lastConfirmed.Unix(),
			})
		}
	}

	tmpfile := path + ".new"
	w, err := os.Create(tmpfile)
	if err != nil {
		return fmt.Errorf("error opening file %s: %w", tmpfile, err)
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(&st); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode file %s: %w", tmpfile, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", tmpfile, err)
	}
	if err := os.Rename(tmpfile, path); err != nil {
		return fmt.Errorf("error writing file %s: %w", path, err)
	}
	t.dirty = false
	return nil
}

// LoadSnapshot restores confirmed records from a file written by
// SaveSnapshot.  Records are re-inserted through the normal insertion path
// with their saved confirmation times, so buckets never exceed capacity.  A
// missing file is not an error.  A snapshot written for a different local
// identifier is rejected since all of its bucket distances would be wrong.
func (t *Table) LoadSnapshot(path string) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil && fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s error opening file: %w", path, err)
	}
	defer r.Close()

	var st serializedTable
	dec := json.NewDecoder(r)
	if err := dec.Decode(&st); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	if st.Version != snapshotVersion {
		return fmt.Errorf("unknown version %v in serialized routing table",
			st.Version)
	}
	if st.Self != t.cfg.Self.String() {
		return fmt.Errorf("serialized routing table belongs to node %s, "+
			"not %s", st.Self, t.cfg.Self)
	}

	for _, sn := range st.Nodes {
		id, err := flid.NewIDFromStr(sn.ID)
		if err != nil {
			return fmt.Errorf("failed to deserialize node %s: %w", sn.ID, err)
		}
		t.insertLoaded(*id, time.Unix(sn.LastConfirmed, 0))
	}
	t.dirty = false

	log.Infof("Loaded %d nodes from file '%s'", t.count, path)
	return nil
}

// insertLoaded inserts a record restored from a snapshot, preserving its
// saved confirmation time.  Records overflowing their bucket are parked as
// pending candidates rather than triggering liveness checks.
func (t *Table) insertLoaded(id flid.ID, lastConfirmed time.Time) {
	if id == t.cfg.Self {
		return
	}
	b := t.bucket(id)
	if b.find(id) != -1 || b.findPending(id) != -1 {
		return
	}
	n := &node{id: id, lastConfirmed: lastConfirmed}
	if len(b.active) < t.cfg.K {
		b.insertActive(n)
		t.count++
		return
	}
	b.addPending(n, 2*t.cfg.K)
}
