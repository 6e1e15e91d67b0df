// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

// CreateRealmResult models the data from the createrealm command.
type CreateRealmResult struct {
	ID         string `json:"id"`
	Placements int32  `json:"placements"`
}

// GetFloResult models the data from the getflo command when the verbose flag
// is set.  When the verbose flag is not set, getflo returns the serialized
// object as a hex-encoded string.
type GetFloResult struct {
	ID           string `json:"id"`
	Realm        string `json:"realm"`
	Type         string `json:"type"`
	Version      uint32 `json:"version"`
	Size         int32  `json:"size"`
	Data         string `json:"data"`
	TTLSeconds   int64  `json:"ttlseconds,omitempty"`
	CuckooParent string `json:"cuckooparent,omitempty"`
}

// FloMetaResult models the entries returned by the getheldflos command.
type FloMetaResult struct {
	ID      string `json:"id"`
	Version uint32 `json:"version"`
	Size    uint32 `json:"size"`
}

// InfoNodeResult models the data returned by the node server getinfo command.
type InfoNodeResult struct {
	Version         int32  `json:"version"`
	ProtocolVersion int32  `json:"protocolversion"`
	NodeID          string `json:"nodeid"`
	Connections     int32  `json:"connections"`
	KnownNodes      int32  `json:"knownnodes"`
	Realms          int32  `json:"realms"`
	HeldFlos        int32  `json:"heldflos"`
	Proxy           string `json:"proxy"`
	SimNet          bool   `json:"simnet"`
}

// GetKnownNodesResult models the entries returned by the getknownnodes
// command.
type GetKnownNodesResult struct {
	NodeID string `json:"nodeid"`
	Bucket int32  `json:"bucket"`
}

// GetPeerInfoResult models the data returned by the getpeerinfo command.
type GetPeerInfoResult struct {
	NodeID    string `json:"nodeid"`
	Addr      string `json:"addr"`
	Inbound   bool   `json:"inbound"`
	Permanent bool   `json:"permanent"`
	LastSend  int64  `json:"lastsend"`
	LastRecv  int64  `json:"lastrecv"`
	BytesSent uint64 `json:"bytessent"`
	BytesRecv uint64 `json:"bytesrecv"`
	ConnTime  int64  `json:"conntime"`
	Version   uint32 `json:"version"`
	SubVer    string `json:"subver"`
}

// LookupResult models the data from the lookup command.
type LookupResult struct {
	Target  string   `json:"target"`
	Closest []string `json:"closest"`
}

// PutFloResult models the data from the putflo command.
type PutFloResult struct {
	ID         string `json:"id"`
	Placements int32  `json:"placements"`
}

// RealmResult models the entries returned by the getrealms command.
type RealmResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Spread   uint32 `json:"spread"`
	MaxSpace uint64 `json:"maxspace"`
	Usage    uint64 `json:"usage"`
	Objects  int32  `json:"objects"`
}

// UpdateFloResult models the data from the updateflo command.
type UpdateFloResult struct {
	ID      string `json:"id"`
	Version uint32 `json:"version"`
	Acks    int32  `json:"acks"`
}

// VersionResult models objects included in the version response.  In the
// actual result, these objects are keyed by the program or API name.
type VersionResult struct {
	VersionString string `json:"versionstring"`
	Major         uint32 `json:"major"`
	Minor         uint32 `json:"minor"`
	Patch         uint32 `json:"patch"`
	Prerelease    string `json:"prerelease"`
	BuildMetadata string `json:"buildmetadata"`
}
