package node

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"firefly/internal/casper"
	"firefly/internal/models"
	"firefly/internal/retry"
)

const bufTarget = "passthrough:///bufnet"

// fakeNode serves the deploy and propose services from canned replies
type fakeNode struct {
	mu          sync.Mutex
	deploys     []*casper.DeployDataProto
	proposals   []casper.ProposeQuery
	depths      []int32
	deployResp  *casper.DeployResponse
	deployErr   error
	proposeResp *casper.ProposeResponse
	blocks      []*casper.BlockInfoResponse
}

func (f *fakeNode) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case casper.MethodDoDeploy:
		var msg casper.DeployDataProto
		if err := stream.RecvMsg(&msg); err != nil {
			return err
		}
		f.deploys = append(f.deploys, &msg)
		if f.deployErr != nil {
			return f.deployErr
		}
		return stream.SendMsg(f.deployResp)

	case casper.MethodPropose:
		var q casper.ProposeQuery
		if err := stream.RecvMsg(&q); err != nil {
			return err
		}
		f.proposals = append(f.proposals, q)
		return stream.SendMsg(f.proposeResp)

	case casper.MethodShowMainChain:
		var q casper.BlocksQuery
		if err := stream.RecvMsg(&q); err != nil {
			return err
		}
		f.depths = append(f.depths, q.Depth)
		for i, block := range f.blocks {
			if int32(i) >= q.Depth {
				break
			}
			if err := stream.SendMsg(block); err != nil {
				return err
			}
		}
		return nil
	}
	return status.Errorf(codes.Unimplemented, "unknown method %s", method)
}

func deployOK(id string) *casper.DeployResponse {
	text := "Success! DeployId is: " + id
	return &casper.DeployResponse{StringResult: casper.StringResult{Result: &text}}
}

func proposeOK(hash string) *casper.ProposeResponse {
	text := "Success! Block " + hash + " created and added."
	return &casper.ProposeResponse{StringResult: casper.StringResult{Result: &text}}
}

func block(number int64) *casper.BlockInfoResponse {
	return &casper.BlockInfoResponse{BlockInfo: &casper.LightBlockInfo{BlockHash: "h", BlockNumber: number}}
}

func startNode(t *testing.T, f *fakeNode) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(casper.Codec{}),
		grpc.UnknownServiceHandler(f.handle),
	)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis
}

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func newTestClient(t *testing.T, f *fakeNode) *WriteClient {
	t.Helper()

	lis := startNode(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ConnectWithRetry(ctx, bufTarget, bufTarget, WithDialOptions(bufDialer(lis)))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func testKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func TestDeployPinnedBlock(t *testing.T) {
	f := &fakeNode{deployResp: deployOK("3045abc")}
	client := newTestClient(t, f)
	key := testKey(t)

	ts := time.UnixMilli(1_700_000_000_000)
	data := models.NewDeployData("@0!(1)",
		models.WithTimestamp(ts),
		models.WithPhloLimit(1000),
		models.WithValidAfter(models.ValidAfterIndex(7)),
	)

	id, err := client.Deploy(context.Background(), key, data)
	require.NoError(t, err)
	assert.Equal(t, models.DeployID("3045abc"), id)

	require.Len(t, f.deploys, 1)
	assert.Empty(t, f.depths, "pinned block must not query the chain head")

	got := f.deploys[0]
	assert.Equal(t, "@0!(1)", got.Term)
	assert.Equal(t, int64(1_700_000_000_000), got.Timestamp)
	assert.Equal(t, int64(1), got.PhloPrice)
	assert.Equal(t, int64(1000), got.PhloLimit)
	assert.Equal(t, int64(7), got.ValidAfterBlockNumber)
	assert.Equal(t, "root", got.ShardID)
	assert.Equal(t, "secp256k1", got.SigAlgorithm)
	assert.Equal(t, key.PubKey().SerializeUncompressed(), got.Deployer)

	contract, err := got.MarshalWire()
	require.NoError(t, err)
	assert.NoError(t, casper.Verify(models.SignedCode{
		Contract:     contract,
		Sig:          got.Sig,
		SigAlgorithm: got.SigAlgorithm,
		Deployer:     got.Deployer,
	}))
}

func TestDeployResolvesHead(t *testing.T) {
	f := &fakeNode{
		deployResp: deployOK("d1"),
		blocks:     []*casper.BlockInfoResponse{block(12), block(11)},
	}
	client := newTestClient(t, f)

	_, err := client.Deploy(context.Background(), testKey(t), models.NewDeployData("Nil"))
	require.NoError(t, err)

	assert.Equal(t, []int32{1}, f.depths)
	require.Len(t, f.deploys, 1)
	assert.Equal(t, int64(12), f.deploys[0].ValidAfterBlockNumber)
}

func TestHeadBlockIndex(t *testing.T) {
	t.Run("empty chain", func(t *testing.T) {
		client := newTestClient(t, &fakeNode{})

		head, err := client.HeadBlockIndex(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(0), head)
	})

	t.Run("latest block", func(t *testing.T) {
		client := newTestClient(t, &fakeNode{blocks: []*casper.BlockInfoResponse{block(99)}})

		head, err := client.HeadBlockIndex(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(99), head)
	})

	t.Run("node error", func(t *testing.T) {
		client := newTestClient(t, &fakeNode{blocks: []*casper.BlockInfoResponse{
			{Error: &casper.ServiceError{Messages: []string{"casper not ready"}}},
		}})

		_, err := client.HeadBlockIndex(context.Background())
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, []string{"casper not ready"}, rejected.Messages)
	})
}

func TestDeployRejected(t *testing.T) {
	f := &fakeNode{deployResp: &casper.DeployResponse{StringResult: casper.StringResult{
		Error: &casper.ServiceError{Messages: []string{"Insufficient phlo", "deploy dropped"}},
	}}}
	client := newTestClient(t, f)

	_, err := client.Deploy(context.Background(), testKey(t),
		models.NewDeployData("Nil", models.WithValidAfter(models.ValidAfterIndex(0))))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "deploy", rejected.Op)
	assert.Equal(t, []string{"Insufficient phlo", "deploy dropped"}, rejected.Messages)
	assert.Contains(t, err.Error(), "Insufficient phlo")
}

func TestDeployUnexpectedResponse(t *testing.T) {
	odd := "Deploy accepted"
	tests := []struct {
		name string
		resp *casper.DeployResponse
	}{
		{"unknown text", &casper.DeployResponse{StringResult: casper.StringResult{Result: &odd}}},
		{"empty oneof", &casper.DeployResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &fakeNode{deployResp: tt.resp})

			_, err := client.Deploy(context.Background(), testKey(t),
				models.NewDeployData("Nil", models.WithValidAfter(models.ValidAfterIndex(1))))
			assert.ErrorIs(t, err, ErrUnexpectedResponse)
		})
	}
}

func TestDeployTransportError(t *testing.T) {
	f := &fakeNode{deployErr: status.Error(codes.Internal, "boom")}
	client := newTestClient(t, f)

	_, err := client.Deploy(context.Background(), testKey(t),
		models.NewDeployData("Nil", models.WithValidAfter(models.ValidAfterIndex(1))))
	require.Error(t, err)

	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestDeploySigned(t *testing.T) {
	f := &fakeNode{deployResp: deployOK("signed-1")}
	client := newTestClient(t, f)
	key := testKey(t)

	prepared, err := casper.Prepare(models.NewDeployData("@1!(2)"), 5)
	require.NoError(t, err)
	signed := casper.Sign(key, prepared)

	id, err := client.DeploySigned(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, models.DeployID("signed-1"), id)

	require.Len(t, f.deploys, 1)
	assert.Equal(t, signed.Sig, f.deploys[0].Sig)
	assert.Equal(t, signed.Deployer, f.deploys[0].Deployer)
	assert.Equal(t, int64(5), f.deploys[0].ValidAfterBlockNumber)

	_, err = client.DeploySigned(context.Background(), models.SignedCode{Contract: []byte{0xff}})
	assert.ErrorIs(t, err, casper.ErrMalformedEnvelope)
}

func TestPropose(t *testing.T) {
	f := &fakeNode{proposeResp: proposeOK("7f3a")}
	client := newTestClient(t, f)

	hash, err := client.Propose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BlockID("7f3a"), hash)
	require.Len(t, f.proposals, 1)
	assert.False(t, f.proposals[0].IsAsync)
}

func TestProposeRejected(t *testing.T) {
	f := &fakeNode{proposeResp: &casper.ProposeResponse{StringResult: casper.StringResult{
		Error: &casper.ServiceError{Messages: []string{"NoNewDeploys"}},
	}}}
	client := newTestClient(t, f)

	_, err := client.Propose(context.Background())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "propose", rejected.Op)
}

func TestFullDeploy(t *testing.T) {
	f := &fakeNode{
		deployResp:  deployOK("d9"),
		proposeResp: proposeOK("b9"),
		blocks:      []*casper.BlockInfoResponse{block(3)},
	}
	client := newTestClient(t, f)

	hash, err := client.FullDeploy(context.Background(), testKey(t), models.NewDeployData("Nil"))
	require.NoError(t, err)
	assert.Equal(t, models.BlockID("b9"), hash)
	assert.Len(t, f.deploys, 1)
	assert.Len(t, f.proposals, 1)
}

func TestConnectWithRetryRecovers(t *testing.T) {
	lis := startNode(t, &fakeNode{proposeResp: proposeOK("b")})

	var attempts atomic.Int32
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		if attempts.Add(1) <= 3 {
			return nil, errors.New("connection refused")
		}
		return lis.DialContext(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithRetry(ctx, bufTarget, bufTarget,
		WithDialOptions(dialer),
		WithRetryConfig(retry.Config{
			Enabled:      true,
			MaxRetries:   retry.Unbounded,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	assert.GreaterOrEqual(t, attempts.Load(), int32(4))

	_, err = client.Propose(ctx)
	assert.NoError(t, err)
}

func TestConnectWithRetryHonoursContext(t *testing.T) {
	dialer := grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ConnectWithRetry(ctx, bufTarget, bufTarget,
		WithDialOptions(dialer),
		WithRetryConfig(retry.Config{
			Enabled:      true,
			MaxRetries:   retry.Unbounded,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     10 * time.Millisecond,
		}),
	)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGRPCTarget(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:40401", "localhost:40401"},
		{"https://node.example:443/", "node.example:443"},
		{"localhost:40402", "localhost:40402"},
		{"passthrough:///bufnet", "passthrough:///bufnet"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, grpcTarget(tt.in), tt.in)
	}
}
