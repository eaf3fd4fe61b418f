// Package journal records deploys submitted by this process and the finalization events
// of tracked wallets in a storage.Repository.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"firefly/internal/events"
	"firefly/internal/identity"
	"firefly/internal/metrics"
	"firefly/internal/models"
	"firefly/internal/storage"
)

// WalletFeeds hands out wallet subscriptions; *events.Bus implements it
type WalletFeeds interface {
	SubscribeWallet(address identity.WalletAddress) *events.WalletSubscription
}

// Recorder writes journal rows
type Recorder struct {
	repo storage.Repository
	now  func() time.Time
}

// NewRecorder creates a recorder writing to repo
func NewRecorder(repo storage.Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// RecordSubmitted journals a deploy accepted by the node
func (r *Recorder) RecordSubmitted(ctx context.Context, id models.DeployID, deployer identity.WalletAddress, data models.DeployData) error {
	submittedAt := r.now().UTC()
	return r.repo.SaveSubmittedDeploy(ctx, &models.DeployRecord{
		DeployID:    id,
		Deployer:    deployer.String(),
		Status:      models.DeploySubmitted,
		PhloLimit:   data.PhloLimit,
		TermSize:    len(data.Term),
		SubmittedAt: &submittedAt,
	})
}

// RecordFinalized journals a finalization event of deployer
func (r *Recorder) RecordFinalized(ctx context.Context, deployer identity.WalletAddress, event models.DeployEvent) error {
	status := models.DeployFinal
	if event.Errored {
		status = models.DeployErrored
	}

	finalizedAt := r.now().UTC()
	return r.repo.MarkDeployFinalized(ctx, &models.DeployRecord{
		DeployID:    event.ID,
		Deployer:    deployer.String(),
		Status:      status,
		Cost:        event.Cost,
		FinalizedAt: &finalizedAt,
	})
}

// Track subscribes to every wallet and journals its finalized deploys until ctx is done
func (r *Recorder) Track(ctx context.Context, feeds WalletFeeds, wallets []identity.WalletAddress) {
	var wg sync.WaitGroup
	for _, wallet := range wallets {
		sub := feeds.SubscribeWallet(wallet)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()
			r.consume(ctx, sub)
		}()
	}

	slog.Info("Journaling tracked wallets", "wallets", len(wallets))
	wg.Wait()
}

func (r *Recorder) consume(ctx context.Context, sub *events.WalletSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := r.RecordFinalized(ctx, sub.Address(), event); err != nil {
				slog.Error("Failed to journal finalized deploy",
					"deploy_id", event.ID,
					"wallet", sub.Address(),
					"error", err)
				metrics.ErrorsTotal.WithLabelValues("journal").Inc()
			}
		}
	}
}
