package events

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firefly/internal/identity"
	"firefly/internal/models"
	"firefly/internal/retry"
)

func finalized(deploys ...models.BlockEventDeploy) models.NodeEvent {
	return models.NodeEvent{
		Kind: models.EventBlockFinalised,
		Payload: &models.BlockEventPayload{
			BlockHash: "b1",
			Deploys:   deploys,
		},
	}
}

func waiterCount(b *Bus, id models.DeployID) int {
	waiters, ok := b.deploys.Get(string(id))
	if !ok {
		return 0
	}
	return waiters.Count()
}

func newWallet(t *testing.T) (identity.WalletAddress, string) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	pub := key.PubKey()
	return identity.AddressFromPublicKey(pub), hex.EncodeToString(pub.SerializeUncompressed())
}

func TestAllWaitersNotified(t *testing.T) {
	b := New("ws://node")
	const n = 16

	results := make(chan bool, n)
	for range n {
		go func() {
			results <- b.WaitForDeploy(context.Background(), "d1", 5*time.Second)
		}()
	}
	require.Eventually(t, func() bool { return waiterCount(b, "d1") == n }, time.Second, time.Millisecond)

	b.Dispatch(finalized(models.BlockEventDeploy{ID: "d1"}))

	for range n {
		assert.True(t, <-results)
	}
	assert.False(t, b.HasWaiters("d1"))
	assert.Zero(t, b.PendingDeploys())
}

func TestWaitTimeoutDeregisters(t *testing.T) {
	b := New("ws://node")

	assert.False(t, b.WaitForDeploy(context.Background(), "d1", 10*time.Millisecond))
	assert.False(t, b.HasWaiters("d1"))
	assert.Zero(t, b.PendingDeploys())
}

func TestCancelledWaitDeregisters(t *testing.T) {
	b := New("ws://node")

	stay := b.Watch("d1")
	defer stay.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() { done <- b.WaitForDeploy(ctx, "d1", time.Minute) }()

	require.Eventually(t, func() bool { return waiterCount(b, "d1") == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.False(t, <-done)

	// the other waiter keeps the entry alive
	assert.Equal(t, 1, waiterCount(b, "d1"))

	stay.Cancel()
	assert.False(t, b.HasWaiters("d1"))
	stay.Cancel()
	assert.Zero(t, b.PendingDeploys())
}

func TestWaiterCancelAfterNotify(t *testing.T) {
	b := New("ws://node")

	w := b.Watch("d1")
	b.Dispatch(finalized(models.BlockEventDeploy{ID: "d1"}))

	// a newer waiter for the same id must survive the old one's cleanup
	late := b.Watch("d1")
	w.Cancel()
	assert.Equal(t, 1, waiterCount(b, "d1"))

	select {
	case <-w.Done():
	default:
		t.Fatal("waiter registered before dispatch was not notified")
	}
	assert.True(t, w.Wait(context.Background(), time.Millisecond))

	assert.False(t, late.Wait(context.Background(), 10*time.Millisecond))
	assert.Zero(t, b.PendingDeploys())
}

func TestOtherDeploysUntouched(t *testing.T) {
	b := New("ws://node")

	w := b.Watch("d2")
	defer w.Cancel()

	b.Dispatch(finalized(models.BlockEventDeploy{ID: "d1"}))
	b.Dispatch(models.NodeEvent{Kind: models.EventBlockAdded, Payload: &models.BlockEventPayload{
		Deploys: []models.BlockEventDeploy{{ID: "d2"}},
	}})
	b.Dispatch(models.NodeEvent{Kind: models.EventStarted})

	assert.True(t, b.HasWaiters("d2"))
}

func TestConcurrentWaitAndFinalize(t *testing.T) {
	b := New("ws://node")

	var wg sync.WaitGroup
	for i := range 200 {
		id := models.DeployID(fmt.Sprintf("d%d", i%10))
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.WaitForDeploy(context.Background(), id, time.Duration(i%5)*time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			b.Dispatch(finalized(models.BlockEventDeploy{ID: id}))
		}()
	}
	wg.Wait()

	assert.Zero(t, b.PendingDeploys())
}

func TestWalletSubscription(t *testing.T) {
	b := New("ws://node")
	wallet, deployer := newWallet(t)
	other, otherDeployer := newWallet(t)

	sub := b.SubscribeWallet(wallet)
	defer sub.Close()
	assert.Equal(t, wallet, sub.Address())
	assert.True(t, b.HasWalletFeed(wallet))
	assert.False(t, b.HasWalletFeed(other))

	b.Dispatch(finalized(
		models.BlockEventDeploy{ID: "d1", Cost: 321, Deployer: deployer, Errored: true},
		models.BlockEventDeploy{ID: "d2", Cost: 5, Deployer: otherDeployer},
		models.BlockEventDeploy{ID: "d3", Deployer: "not-a-key"},
	))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, models.DeployEvent{Kind: models.DeployFinalized, ID: "d1", Cost: 321, Errored: true}, ev)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestWalletFeedRemovedWithLastSubscriber(t *testing.T) {
	b := New("ws://node")
	wallet, _ := newWallet(t)

	first := b.SubscribeWallet(wallet)
	second := b.SubscribeWallet(wallet)

	first.Close()
	assert.True(t, b.HasWalletFeed(wallet))

	_, open := <-first.Events()
	assert.False(t, open)

	second.Close()
	second.Close()
	assert.False(t, b.HasWalletFeed(wallet))

	third := b.SubscribeWallet(wallet)
	assert.True(t, b.HasWalletFeed(wallet))
	third.Close()
	assert.False(t, b.HasWalletFeed(wallet))
}

func TestLaggingSubscriberMissesEvents(t *testing.T) {
	b := New("ws://node", WithFeedBuffer(1))
	wallet, deployer := newWallet(t)

	slow := b.SubscribeWallet(wallet)
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 {
			b.Dispatch(finalized(models.BlockEventDeploy{ID: models.DeployID(fmt.Sprintf("d%d", i)), Deployer: deployer}))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a slow subscriber")
	}

	ev := <-slow.Events()
	assert.Equal(t, models.DeployID("d0"), ev.ID)
	assert.Empty(t, slow.Events())
}

var upgrader = websocket.Upgrader{}

// eventStream serves /ws/events, handing every connection to serve
func eventStream(t *testing.T, serve func(n int, conn *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/events" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(int(conns.Add(1)), conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func fastRetry() Option {
	return WithRetryConfig(retry.Config{
		Enabled:      true,
		MaxRetries:   retry.Unbounded,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	})
}

func TestIngestionSkipsBadFrames(t *testing.T) {
	srv, _ := eventStream(t, func(_ int, conn *websocket.Conn) {
		frames := []struct {
			typ  int
			data string
		}{
			{websocket.BinaryMessage, `{"event":"block-finalised"}`},
			{websocket.TextMessage, `not json`},
			{websocket.TextMessage, `{"event":"unknown-event","payload":{}}`},
			{websocket.TextMessage, `{"event":"started","payload":{"schema-version":1}}`},
			{websocket.TextMessage, `{"event":"block-finalised","payload":{"block-hash":"b1","deploys":[{"id":"d1","cost":10,"deployer":"04","errored":false}]}}`},
		}
		for _, f := range frames {
			if err := conn.WriteMessage(f.typ, []byte(f.data)); err != nil {
				return
			}
		}
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	})

	b := New(srv.URL, fastRetry())
	w := b.Watch("d1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	b.Start(ctx)

	assert.True(t, w.Wait(ctx, 5*time.Second))
	assert.Zero(t, b.PendingDeploys())
}

func TestIngestionReconnects(t *testing.T) {
	srv, conns := eventStream(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			return // drop the first connection straight away
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"block-finalised","payload":{"block_hash":"b2","deploys":[{"id":"d7","cost":1,"deployer":"04","errored":false}]}}`))
		_, _, _ = conn.ReadMessage()
	})

	b := New(srv.URL, fastRetry())
	w := b.Watch("d7")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	assert.True(t, w.Wait(ctx, 5*time.Second))
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestIngestionRetriesUnavailableStream(t *testing.T) {
	var failures atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(1) <= 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"block-finalised","payload":{"block-hash":"b3","deploys":[{"id":"d3","cost":1,"deployer":"04","errored":false}]}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	b := New(srv.URL, fastRetry())
	w := b.Watch("d3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	assert.True(t, w.Wait(ctx, 5*time.Second))
	assert.Greater(t, failures.Load(), int32(3))
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ws://localhost:40403", "ws://localhost:40403/ws/events"},
		{"ws://localhost:40403/", "ws://localhost:40403/ws/events"},
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws/events"},
		{"https://observer.example", "wss://observer.example/ws/events"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, eventsURL(tt.in))
	}
	assert.True(t, strings.HasSuffix(New("ws://x").url, eventsPath))
}
