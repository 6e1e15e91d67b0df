// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flostore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// floDbName is the name of the database directory holding the stored
	// objects.
	floDbName = "flodb"

	// currentDbVersion is the version of the database format this software
	// reads and writes.
	currentDbVersion = 1
)

var (
	// dbVersionKey is the key of the single byte recording the database
	// format version.
	dbVersionKey = []byte("version")

	// floSetKeyPrefix is the prefix of all keys holding serialized
	// objects.  The object identifier follows the prefix.
	floSetKeyPrefix = []byte{0x01}
)

// convertLdbErr converts the passed leveldb error into a store error with an
// equivalent error kind and the passed description.  It also sets the passed
// error as the underlying error and adds its error string to the description.
func convertLdbErr(ldbErr error, desc string) StoreError {
	kind := ErrDB
	if ldberrors.IsCorrupted(ldbErr) {
		kind = ErrDBCorruption
	}

	desc = fmt.Sprintf("%s: %v", desc, ldbErr)
	return storeError(kind, desc)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// checkDbVersion ensures the database carries the format version this
// software understands, writing the current version into a fresh database.
func checkDbVersion(db *leveldb.DB) error {
	serialized, err := db.Get(dbVersionKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			err := db.Put(dbVersionKey, []byte{currentDbVersion}, nil)
			if err != nil {
				return convertLdbErr(err, "failed to write database version")
			}
			return nil
		}
		return convertLdbErr(err, "failed to read database version")
	}
	if len(serialized) != 1 {
		str := fmt.Sprintf("database version record is %d bytes, expected 1",
			len(serialized))
		return storeError(ErrDBCorruption, str)
	}
	if serialized[0] != currentDbVersion {
		str := fmt.Sprintf("database version %d requires a newer version of "+
			"the software (understands version %d)", serialized[0],
			currentDbVersion)
		return storeError(ErrDBVersion, str)
	}
	return nil
}

// LoadFloDB loads (or creates when needed) the object database within the
// given data directory and returns a handle to it.  The caller is
// responsible for closing the returned database.
func LoadFloDB(dataDir string) (*leveldb.DB, error) {
	dbPath := filepath.Join(dataDir, floDbName)

	// Ensure the full path to the database exists.
	dbExists := fileExists(dbPath)
	if !dbExists {
		// The error can be ignored here since the call to leveldb.OpenFile
		// will fail if the directory couldn't be created.
		_ = os.MkdirAll(dataDir, 0700)
	}

	log.Infof("Loading object database from '%s'", dbPath)
	opts := opt.Options{
		ErrorIfExist: !dbExists,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open object database")
	}

	if err := checkDbVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Object database loaded")
	return db, nil
}

// floKey returns the database key of the object with the given identifier.
func floKey(id flid.ID) []byte {
	key := make([]byte, len(floSetKeyPrefix)+flid.IDSize)
	copy(key, floSetKeyPrefix)
	copy(key[len(floSetKeyPrefix):], id[:])
	return key
}

// dbPutFlo writes the serialized object under its identifier, replacing any
// previously stored copy.
func dbPutFlo(db *leveldb.DB, f *flo.Flo) error {
	serialized, err := f.Bytes()
	if err != nil {
		str := fmt.Sprintf("failed to serialize object %s: %v", f.ID(), err)
		return storeError(ErrInvalidFlo, str)
	}
	if err := db.Put(floKey(f.ID()), serialized, nil); err != nil {
		str := fmt.Sprintf("failed to store object %s", f.ID())
		return convertLdbErr(err, str)
	}
	return nil
}

// dbRemoveFlo deletes the stored object with the given identifier.  Deleting
// an object that is not stored is not an error.
func dbRemoveFlo(db *leveldb.DB, id flid.ID) error {
	if err := db.Delete(floKey(id), nil); err != nil {
		str := fmt.Sprintf("failed to remove object %s", id)
		return convertLdbErr(err, str)
	}
	return nil
}

// dbFetchAllFlos loads every stored object from the database.
func dbFetchAllFlos(db *leveldb.DB) ([]*flo.Flo, error) {
	var flos []*flo.Flo
	iter := db.NewIterator(util.BytesPrefix(floSetKeyPrefix), nil)
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(floSetKeyPrefix)+flid.IDSize {
			iter.Release()
			str := fmt.Sprintf("object key %x has unexpected length %d", key,
				len(key))
			return nil, storeError(ErrDBCorruption, str)
		}

		// The iterator reuses its buffers, so the value must be copied
		// before it outlives this iteration.
		serialized := make([]byte, len(iter.Value()))
		copy(serialized, iter.Value())

		f, err := flo.NewFloFromBytes(serialized)
		if err != nil {
			iter.Release()
			str := fmt.Sprintf("stored object %x does not decode: %v",
				key[len(floSetKeyPrefix):], err)
			return nil, storeError(ErrDBCorruption, str)
		}

		var id flid.ID
		copy(id[:], key[len(floSetKeyPrefix):])
		if f.ID() != id {
			iter.Release()
			str := fmt.Sprintf("stored object %s does not match its key %s",
				f.ID(), id)
			return nil, storeError(ErrDBCorruption, str)
		}

		flos = append(flos, f)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, convertLdbErr(err, "failed to iterate stored objects")
	}
	return flos, nil
}
