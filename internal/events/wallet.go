package events

import (
	"sync"

	"firefly/internal/identity"
	"firefly/internal/metrics"
	"firefly/internal/models"
)

// walletFeed fans events out to the subscribers of one wallet
type walletFeed struct {
	mu   sync.Mutex
	subs map[*WalletSubscription]struct{}
}

// publish never blocks; a subscriber with a full buffer misses the event
func (f *walletFeed) publish(event models.DeployEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		select {
		case sub.events <- event:
		default:
			metrics.WalletEventsDropped.Inc()
		}
	}
}

// WalletSubscription receives Finalized events for deploys of one wallet
type WalletSubscription struct {
	bus     *Bus
	address identity.WalletAddress
	events  chan models.DeployEvent
	once    sync.Once
}

// SubscribeWallet starts a feed of finalized deploys made by address. Close the
// subscription when done with it.
func (b *Bus) SubscribeWallet(address identity.WalletAddress) *WalletSubscription {
	sub := &WalletSubscription{
		bus:     b,
		address: address,
		events:  make(chan models.DeployEvent, b.feedBuffer),
	}

	b.wallets.Upsert(address.String(), nil, func(exists bool, feed, _ *walletFeed) *walletFeed {
		if !exists {
			feed = &walletFeed{subs: make(map[*WalletSubscription]struct{})}
			metrics.ActiveWalletFeeds.Inc()
		}
		feed.mu.Lock()
		feed.subs[sub] = struct{}{}
		feed.mu.Unlock()
		return feed
	})

	return sub
}

// Address returns the subscribed wallet
func (s *WalletSubscription) Address() identity.WalletAddress {
	return s.address
}

// Events yields Finalized events. The channel is closed by Close.
func (s *WalletSubscription) Events() <-chan models.DeployEvent {
	return s.events
}

// Close ends the subscription. The wallet's feed is removed with its last subscriber.
func (s *WalletSubscription) Close() {
	s.once.Do(func() {
		s.bus.wallets.RemoveCb(s.address.String(), func(_ string, feed *walletFeed, exists bool) bool {
			if !exists {
				close(s.events)
				return false
			}

			feed.mu.Lock()
			defer feed.mu.Unlock()

			delete(feed.subs, s)
			close(s.events)

			if len(feed.subs) > 0 {
				return false
			}
			metrics.ActiveWalletFeeds.Dec()
			return true
		})
	})
}
