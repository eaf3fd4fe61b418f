package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"firefly/internal/models"
)

// MemoryRepository is a process-local Repository used when no database is configured
type MemoryRepository struct {
	mu      sync.RWMutex
	deploys map[models.DeployID]models.DeployRecord
}

// NewMemoryRepository creates an empty in-memory journal
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{deploys: make(map[models.DeployID]models.DeployRecord)}
}

func (r *MemoryRepository) SaveSubmittedDeploy(_ context.Context, record *models.DeployRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deploys[record.DeployID]; ok {
		return nil
	}

	saved := *record
	saved.Status = models.DeploySubmitted
	saved.Cost = 0
	saved.FinalizedAt = nil
	r.deploys[record.DeployID] = saved
	return nil
}

func (r *MemoryRepository) MarkDeployFinalized(_ context.Context, record *models.DeployRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saved, ok := r.deploys[record.DeployID]
	if !ok {
		saved = models.DeployRecord{DeployID: record.DeployID}
	}
	if saved.Deployer == "" {
		saved.Deployer = record.Deployer
	}
	saved.Status = record.Status
	saved.Cost = record.Cost
	saved.FinalizedAt = record.FinalizedAt

	r.deploys[record.DeployID] = saved
	return nil
}

func (r *MemoryRepository) GetDeploy(_ context.Context, id models.DeployID) (*models.DeployRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.deploys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeployNotFound, id)
	}
	return &record, nil
}

func (r *MemoryRepository) ListWalletDeploys(_ context.Context, deployer string, limit, offset int) ([]*models.DeployRecord, error) {
	r.mu.RLock()
	var records []*models.DeployRecord
	for _, record := range r.deploys {
		if record.Deployer == deployer {
			record := record
			records = append(records, &record)
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		ti, tj := sortTime(records[i]), sortTime(records[j])
		if ti != tj {
			return ti > tj
		}
		return records[i].DeployID < records[j].DeployID
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// sortTime mirrors COALESCE(submitted_at, finalized_at)
func sortTime(r *models.DeployRecord) int64 {
	switch {
	case r.SubmittedAt != nil:
		return r.SubmittedAt.UnixNano()
	case r.FinalizedAt != nil:
		return r.FinalizedAt.UnixNano()
	default:
		return 0
	}
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
