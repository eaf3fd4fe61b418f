package models

import (
	"time"

	"firefly/internal/rendering"
)

// DefaultPhloLimit is the phlo limit used when a deploy does not set one
const DefaultPhloLimit uint64 = 5_000_000

// DeployID is the node-assigned identifier of a submitted deploy
type DeployID string

// BlockID is the hash of a block produced by the node
type BlockID string

func (id DeployID) String() string { return string(id) }
func (id BlockID) String() string  { return string(id) }

// ToValue renders deploy ids as plain strings
func (id DeployID) ToValue() rendering.Value { return rendering.String(id) }

// ToValue renders block ids as plain strings
func (id BlockID) ToValue() rendering.Value { return rendering.String(id) }

// ValidAfter selects the block number a deploy becomes eligible after.
// The zero value means the current head of the chain.
type ValidAfter struct {
	index uint64
	fixed bool
}

// ValidAfterHead resolves the block number from the chain head at deploy time
func ValidAfterHead() ValidAfter {
	return ValidAfter{}
}

// ValidAfterIndex pins the block number
func ValidAfterIndex(index uint64) ValidAfter {
	return ValidAfter{index: index, fixed: true}
}

// Index returns the pinned block number and whether one is set
func (v ValidAfter) Index() (uint64, bool) {
	return v.index, v.fixed
}

// IsHead reports whether the block number is resolved from the chain head
func (v ValidAfter) IsHead() bool {
	return !v.fixed
}

// DeployData is everything needed to build one deploy envelope
type DeployData struct {
	Term                  string
	PhloLimit             uint64
	Timestamp             time.Time
	ValidAfterBlockNumber ValidAfter
}

// DeployOption customizes DeployData built by NewDeployData
type DeployOption func(*DeployData)

// NewDeployData builds deploy data for the given source with default phlo limit,
// the current time and a head-relative block number
func NewDeployData(term string, opts ...DeployOption) DeployData {
	data := DeployData{
		Term:                  term,
		PhloLimit:             DefaultPhloLimit,
		Timestamp:             time.Now(),
		ValidAfterBlockNumber: ValidAfterHead(),
	}
	for _, opt := range opts {
		opt(&data)
	}
	return data
}

// WithPhloLimit overrides the default phlo limit
func WithPhloLimit(limit uint64) DeployOption {
	return func(d *DeployData) { d.PhloLimit = limit }
}

// WithTimestamp overrides the deploy timestamp
func WithTimestamp(ts time.Time) DeployOption {
	return func(d *DeployData) { d.Timestamp = ts }
}

// WithValidAfter overrides the valid-after block number
func WithValidAfter(v ValidAfter) DeployOption {
	return func(d *DeployData) { d.ValidAfterBlockNumber = v }
}

// PreparedContract is a serialized unsigned deploy envelope, ready for an external signer
type PreparedContract []byte

// SignedCode is a prepared envelope together with its detached signature
type SignedCode struct {
	Contract     []byte `json:"contract"`
	Sig          []byte `json:"sig"`
	SigAlgorithm string `json:"sig_algorithm"`
	Deployer     []byte `json:"deployer"` // uncompressed public key
}
