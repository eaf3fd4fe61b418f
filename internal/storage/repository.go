package storage

import (
	"context"
	"errors"

	"firefly/internal/models"
)

// ErrDeployNotFound is returned when the journal has no row for a deploy id
var ErrDeployNotFound = errors.New("deploy not found")

// Repository defines the interface for all deploy journal operations
type Repository interface {
	// SaveSubmittedDeploy records a deploy accepted by the node. Existing rows are kept.
	SaveSubmittedDeploy(ctx context.Context, record *models.DeployRecord) error

	// MarkDeployFinalized stores the finalization outcome, creating the row when the
	// deploy was submitted by someone else
	MarkDeployFinalized(ctx context.Context, record *models.DeployRecord) error

	GetDeploy(ctx context.Context, id models.DeployID) (*models.DeployRecord, error)
	ListWalletDeploys(ctx context.Context, deployer string, limit, offset int) ([]*models.DeployRecord, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
