// Package events keeps a standing connection to the node's event stream and turns
// finalized blocks into deploy notifications.
//
// Two registries are kept. Deploy waiters are grouped by deploy id and are removed either
// by the dispatcher when the deploy finalizes or by the waiter itself when it gives up.
// Wallet feeds are created by the first subscriber of an address and removed when its last
// subscriber closes. Neither registry holds entries nobody is waiting on.
package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"

	"firefly/internal/identity"
	"firefly/internal/models"
	"firefly/internal/retry"
)

const (
	eventsPath        = "/ws/events"
	defaultBufferSize = 32
)

// Bus is the node event bus. Create it with New and run it with Start.
// All methods are safe for concurrent use.
type Bus struct {
	url        string
	dialer     *websocket.Dialer
	retry      retry.Config
	feedBuffer int

	events    chan models.NodeEvent
	startOnce sync.Once

	deploys cmap.ConcurrentMap[string, cmap.ConcurrentMap[string, chan struct{}]]
	wallets cmap.ConcurrentMap[string, *walletFeed]
}

// Option customizes a Bus
type Option func(*Bus)

// WithRetryConfig overrides the reconnect backoff policy
func WithRetryConfig(cfg retry.Config) Option {
	return func(b *Bus) { b.retry = cfg }
}

// WithDialer replaces the websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(b *Bus) { b.dialer = dialer }
}

// WithBufferSize sets how many decoded events may wait for the dispatcher
func WithBufferSize(n int) Option {
	return func(b *Bus) { b.events = make(chan models.NodeEvent, n) }
}

// WithFeedBuffer sets how many events a wallet subscriber may lag behind before it
// starts missing events
func WithFeedBuffer(n int) Option {
	return func(b *Bus) { b.feedBuffer = n }
}

// New creates a bus for the node whose websocket API is at url, e.g. ws://localhost:40403.
// http and https URLs are mapped to ws and wss.
func New(url string, opts ...Option) *Bus {
	b := &Bus{
		url: eventsURL(url),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		retry:      retry.DefaultConfig(),
		feedBuffer: defaultBufferSize,
		events:     make(chan models.NodeEvent, defaultBufferSize),
		deploys:    cmap.New[cmap.ConcurrentMap[string, chan struct{}]](),
		wallets:    cmap.New[*walletFeed](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func eventsURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	switch {
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	}
	return url + eventsPath
}

// Start launches the ingestion and dispatch loops. They run until ctx is done.
// Calling Start more than once has no effect.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		slog.Info("Starting node event bus", "url", b.url)
		go b.ingest(ctx)
		go b.dispatch(ctx)
	})
}

func (b *Bus) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			b.Dispatch(event)
		}
	}
}

// Dispatch applies one node event to the registries synchronously. The dispatch loop
// calls it for every event read from the stream.
func (b *Bus) Dispatch(event models.NodeEvent) {
	if event.Kind != models.EventBlockFinalised || event.Payload == nil {
		return
	}

	for _, deploy := range event.Payload.Deploys {
		notified := b.notifyWaiters(deploy.ID)
		slog.Debug("Deploy finalized",
			"deploy_id", deploy.ID,
			"block_hash", event.Payload.BlockHash,
			"waiters", notified,
			"errored", deploy.Errored)

		b.publishDeploy(deploy)
	}
}

// notifyWaiters removes the waiters of id and wakes them up
func (b *Bus) notifyWaiters(id models.DeployID) int {
	waiters, ok := b.deploys.Pop(string(id))
	if !ok {
		return 0
	}

	n := 0
	for item := range waiters.IterBuffered() {
		close(item.Val)
		n++
	}
	return n
}

// publishDeploy forwards a finalized deploy to the feed of the deploying wallet
func (b *Bus) publishDeploy(deploy models.BlockEventDeploy) {
	if b.wallets.IsEmpty() {
		return
	}

	key, err := identity.ParsePublicKeyHex(deploy.Deployer)
	if err != nil {
		slog.Debug("Skipping deploy with unparsable deployer", "deploy_id", deploy.ID, "error", err)
		return
	}

	address := identity.AddressFromPublicKey(key)
	if feed, ok := b.wallets.Get(address.String()); ok {
		feed.publish(models.FinalizedEvent(deploy))
	}
}

// PendingDeploys returns the number of deploy ids with at least one waiter
func (b *Bus) PendingDeploys() int {
	return b.deploys.Count()
}

// HasWaiters reports whether anyone is waiting for id
func (b *Bus) HasWaiters(id models.DeployID) bool {
	return b.deploys.Has(string(id))
}

// HasWalletFeed reports whether address has at least one subscriber
func (b *Bus) HasWalletFeed(address identity.WalletAddress) bool {
	return b.wallets.Has(address.String())
}
