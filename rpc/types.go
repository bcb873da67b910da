package rpc

import (
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
)

/* This file defines the json payloads of the node REST interface */

// SubmitStatus is the outcome of a fragment submission
type SubmitStatus string

const (
	Accepted SubmitStatus = "accepted"
	Rejected SubmitStatus = "rejected"
)

// RejectReason explains a rejected submission
type RejectReason string

const (
	ValidationFailed RejectReason = "validation-failed" // the fragment is invalid against the node's ledger
	PoolFull         RejectReason = "pool-full"         // the fragment pool is at capacity
	ConnRefused      RejectReason = "conn-refused"      // the node could not be reached
)

// SubmitResult is the answer to a fragment submission
type SubmitResult struct {
	ID      ledger.FragmentID `json:"id"`
	Status  SubmitStatus      `json:"status"`
	Reason  RejectReason      `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
}

// IsAccepted() reports whether the node took the fragment
func (r SubmitResult) IsAccepted() bool { return r.Status == Accepted }

// String() returns 'accepted' or 'rejected(reason)'
func (r SubmitResult) String() string {
	if r.IsAccepted() {
		return string(r.Status)
	}
	return string(r.Status) + "(" + string(r.Reason) + ")"
}

// FragmentStatus is the lifecycle stage of a fragment on one node
type FragmentStatus string

const (
	StatusPending  FragmentStatus = "pending"    // in the fragment pool
	StatusInABlock FragmentStatus = "in-a-block" // committed
	StatusRejected FragmentStatus = "rejected"   // refused by the node
)

// FragmentOrigin records how a fragment reached a node
type FragmentOrigin string

const (
	FromRest    FragmentOrigin = "rest"    // submitted by a client
	FromNetwork FragmentOrigin = "network" // received through gossip
)

// FragmentLog is the per node record of a fragment
type FragmentLog struct {
	ID            ledger.FragmentID   `json:"id"`
	Kind          ledger.FragmentKind `json:"kind"`
	Status        FragmentStatus      `json:"status"`
	Origin        FragmentOrigin      `json:"origin"`
	Reason        string              `json:"reason,omitempty"`
	Block         *BlockRef           `json:"block,omitempty"`
	ReceivedAt    time.Time           `json:"receivedAt"`
	LastUpdatedAt time.Time           `json:"lastUpdatedAt"`
}

// BlockRef locates a committed fragment
type BlockRef struct {
	Height uint64           `json:"height"`
	Date   ledger.BlockDate `json:"date"`
}

// BlockID identifies a node's chain tip. Hash commits to the set of committed fragments, so two
// nodes that committed the same fragments report the same hash regardless of how they cut blocks
type BlockID struct {
	Hash          lib.HexBytes     `json:"hash"`
	Height        uint64           `json:"height"`
	Date          ledger.BlockDate `json:"date"`
	FragmentCount uint64           `json:"fragmentCount"`
}

// String() returns a short form of the tip
func (b BlockID) String() string {
	return lib.BytesToTruncatedString(b.Hash) + "@" + b.Date.String()
}

// NodeStats summarizes a node
type NodeStats struct {
	Alias             string           `json:"alias"`
	State             string           `json:"state"`
	UptimeS           uint64           `json:"uptimeS"`
	Tip               BlockID          `json:"tip"`
	LastBlockDate     ledger.BlockDate `json:"lastBlockDate"`
	PoolCount         int              `json:"poolCount"`
	PoolBytes         int              `json:"poolBytes"`
	FragmentsReceived uint64           `json:"fragmentsReceived"`
	FragmentsRejected uint64           `json:"fragmentsRejected"`
	Peers             int              `json:"peers"`
	// process resource usage, only reported by external nodes
	ProcessCPUPercent float64 `json:"processCPUPercent,omitempty"`
	ProcessRSSBytes   uint64  `json:"processRSSBytes,omitempty"`
}

// AccountState is the balance view of one account
type AccountState struct {
	Address    string `json:"address"`
	Value      uint64 `json:"value"`
	Counter    uint32 `json:"counter"`
	Delegation string `json:"delegation,omitempty"`
}

// fragmentRequest carries a hex encoded fragment
type fragmentRequest struct {
	Fragment string `json:"fragment"`
}

// gossipRequest carries a fragment between external nodes
type gossipRequest struct {
	From     int64  `json:"from"`
	Fragment string `json:"fragment"`
}

// peersRequest replaces the gossip peers of an external node
type peersRequest struct {
	Peers []Peer `json:"peers"`
}

// Peer is a gossip neighbor of an external node
type Peer struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// healthResponse is the body of the health route
type healthResponse struct {
	Status string `json:"status"`
	Alias  string `json:"alias"`
}
