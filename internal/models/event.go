package models

import (
	"encoding/json"
	"fmt"
)

// NodeEventKind tags the events published on the node event stream
type NodeEventKind string

const (
	EventStarted        NodeEventKind = "started"
	EventBlockAdded     NodeEventKind = "block-added"
	EventBlockCreated   NodeEventKind = "block-created"
	EventBlockFinalised NodeEventKind = "block-finalised"
)

// NodeEvent is one decoded frame of the node event stream.
// Payload is nil for EventStarted.
type NodeEvent struct {
	Kind    NodeEventKind
	Payload *BlockEventPayload
}

// BlockEventPayload describes the block an event refers to
type BlockEventPayload struct {
	BlockHash BlockID            `json:"block-hash"`
	Deploys   []BlockEventDeploy `json:"deploys"`
}

// BlockEventDeploy is a deploy included in a block
type BlockEventDeploy struct {
	ID       DeployID `json:"id"`
	Cost     uint64   `json:"cost"`
	Deployer string   `json:"deployer"` // hex encoded public key
	Errored  bool     `json:"errored"`
}

// DeployEvent is delivered to wallet subscribers
type DeployEvent struct {
	Kind    DeployEventKind `json:"kind"`
	ID      DeployID        `json:"id"`
	Cost    uint64          `json:"cost"`
	Errored bool            `json:"errored"`
}

// DeployEventKind tags DeployEvent. Finalized is the only kind today.
type DeployEventKind string

// DeployFinalized is sent once the block carrying the deploy is finalized
const DeployFinalized DeployEventKind = "finalized"

// FinalizedEvent converts a finalized block deploy into a wallet event
func FinalizedEvent(d BlockEventDeploy) DeployEvent {
	return DeployEvent{
		Kind:    DeployFinalized,
		ID:      d.ID,
		Cost:    d.Cost,
		Errored: d.Errored,
	}
}

// UnmarshalJSON decodes the event-tagged wire form
func (e *NodeEvent) UnmarshalJSON(data []byte) error {
	var wire struct {
		Event   NodeEventKind   `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Event {
	case EventStarted:
		*e = NodeEvent{Kind: EventStarted}
		return nil
	case EventBlockAdded, EventBlockCreated, EventBlockFinalised:
	default:
		return fmt.Errorf("unknown node event %q", wire.Event)
	}

	if len(wire.Payload) == 0 || string(wire.Payload) == "null" {
		return fmt.Errorf("node event %q without payload", wire.Event)
	}

	var payload BlockEventPayload
	if err := json.Unmarshal(wire.Payload, &payload); err != nil {
		return fmt.Errorf("node event %q payload: %w", wire.Event, err)
	}

	*e = NodeEvent{Kind: wire.Event, Payload: &payload}
	return nil
}

// UnmarshalJSON accepts both block-hash (what nodes send) and block_hash
func (p *BlockEventPayload) UnmarshalJSON(data []byte) error {
	var wire struct {
		BlockHash      *BlockID           `json:"block-hash"`
		BlockHashSnake *BlockID           `json:"block_hash"`
		Deploys        []BlockEventDeploy `json:"deploys"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.BlockHash != nil:
		p.BlockHash = *wire.BlockHash
	case wire.BlockHashSnake != nil:
		p.BlockHash = *wire.BlockHashSnake
	default:
		return fmt.Errorf("missing block hash")
	}
	p.Deploys = wire.Deploys
	return nil
}
