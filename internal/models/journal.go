package models

import "time"

// DeployStatus is the lifecycle state of a journaled deploy
type DeployStatus string

const (
	DeploySubmitted DeployStatus = "submitted"
	DeployFinal     DeployStatus = "finalized"
	DeployErrored   DeployStatus = "errored"
)

// DeployRecord is one row of the deploy journal
type DeployRecord struct {
	DeployID    DeployID     `json:"deploy_id"`
	Deployer    string       `json:"deployer"` // wallet address
	Status      DeployStatus `json:"status"`
	Cost        uint64       `json:"cost,omitempty"`
	PhloLimit   uint64       `json:"phlo_limit,omitempty"`
	TermSize    int          `json:"term_size,omitempty"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
}
