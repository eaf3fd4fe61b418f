// Package node implements the clients that talk to a blockchain node: WriteClient over the
// node's gRPC deploy and propose services, and ReadClient over its HTTP query endpoint.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"firefly/internal/casper"
	"firefly/internal/metrics"
	"firefly/internal/models"
	"firefly/internal/retry"
)

const connectAttemptTimeout = 10 * time.Second

var showMainChainDesc = &grpc.StreamDesc{
	StreamName:    "showMainChain",
	ServerStreams: true,
}

// WriteClient signs and submits deploys and triggers block production.
// It is safe for concurrent use.
type WriteClient struct {
	deployConn  *grpc.ClientConn
	proposeConn *grpc.ClientConn
}

type writeOptions struct {
	retry       retry.Config
	dialOptions []grpc.DialOption
}

// Option customizes ConnectWithRetry
type Option func(*writeOptions)

// WithRetryConfig overrides the bootstrap backoff policy
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *writeOptions) { o.retry = cfg }
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *writeOptions) { o.dialOptions = append(o.dialOptions, opts...) }
}

// ConnectWithRetry connects to the deploy and propose services, retrying with exponential
// backoff until both are reachable or ctx is done. It is meant for process bootstrap, while
// the node may still be running genesis.
func ConnectWithRetry(ctx context.Context, deployURL, proposeURL string, opts ...Option) (*WriteClient, error) {
	o := writeOptions{retry: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(casper.Codec{})),
	}, o.dialOptions...)

	strategy := retry.NewStrategy(o.retry,
		retry.RetryAll(),
		retry.WithOperationName("connect to validator"),
		retry.WithOnRetry(func(int, time.Duration, error) { metrics.BootstrapRetries.Inc() }),
	)

	var client *WriteClient
	err := strategy.Execute(ctx, func() error {
		c, err := connect(ctx, deployURL, proposeURL, dialOptions)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to validator", "deploy_service", deployURL, "propose_service", proposeURL)
	return client, nil
}

func connect(ctx context.Context, deployURL, proposeURL string, opts []grpc.DialOption) (*WriteClient, error) {
	deployConn, err := dial(ctx, deployURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to deploy service: %w", err)
	}

	proposeConn, err := dial(ctx, proposeURL, opts)
	if err != nil {
		deployConn.Close()
		return nil, fmt.Errorf("failed to connect to propose service: %w", err)
	}

	return &WriteClient{deployConn: deployConn, proposeConn: proposeConn}, nil
}

// dial creates a client connection and waits until it is ready, so that an unreachable
// node surfaces here instead of on the first call
func dial(ctx context.Context, url string, opts []grpc.DialOption) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(grpcTarget(url), opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectAttemptTimeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return conn, nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			conn.Close()
			return nil, fmt.Errorf("%s: connection %s", url, strings.ToLower(state.String()))
		}
		if !conn.WaitForStateChange(ctx, state) {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", url, ctx.Err())
		}
	}
}

// grpcTarget accepts node URLs in http://host:port form
func grpcTarget(url string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(url, scheme); ok {
			return strings.TrimSuffix(rest, "/")
		}
	}
	return url
}

// Close releases both connections
func (c *WriteClient) Close() error {
	return errors.Join(c.deployConn.Close(), c.proposeConn.Close())
}

// Deploy signs data with key and submits it. A head-relative valid-after block number is
// resolved with HeadBlockIndex first.
func (c *WriteClient) Deploy(ctx context.Context, key *secp256k1.PrivateKey, data models.DeployData) (models.DeployID, error) {
	validAfter, fixed := data.ValidAfterBlockNumber.Index()
	if !fixed {
		head, err := c.HeadBlockIndex(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve valid after block number: %w", err)
		}
		validAfter = head
	}

	prepared, err := casper.Prepare(data, validAfter)
	if err != nil {
		return "", err
	}

	return c.DeploySigned(ctx, casper.Sign(key, prepared))
}

// DeploySigned submits an envelope signed elsewhere. The envelope's signature fields are
// replaced with the detached ones from signed.
func (c *WriteClient) DeploySigned(ctx context.Context, signed models.SignedCode) (models.DeployID, error) {
	msg, err := casper.Attach(signed)
	if err != nil {
		return "", err
	}

	start := time.Now()
	var resp casper.DeployResponse
	err = c.deployConn.Invoke(ctx, casper.MethodDoDeploy, msg, &resp)
	metrics.NodeRequestDuration.WithLabelValues("do_deploy").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("node").Inc()
		return "", fmt.Errorf("doDeploy: %w", err)
	}

	text, err := unwrapResult("deploy", &resp.StringResult)
	if err != nil {
		metrics.DeploysRejected.Inc()
		return "", err
	}

	id, err := ParseDeployResult(text)
	if err != nil {
		return "", err
	}

	metrics.DeploysSubmitted.Inc()
	slog.Debug("Deploy submitted", "deploy_id", id, "term_size", len(msg.Term))
	return id, nil
}

// Propose asks the node to create a block synchronously
func (c *WriteClient) Propose(ctx context.Context) (models.BlockID, error) {
	start := time.Now()
	var resp casper.ProposeResponse
	err := c.proposeConn.Invoke(ctx, casper.MethodPropose, &casper.ProposeQuery{IsAsync: false}, &resp)
	metrics.NodeRequestDuration.WithLabelValues("propose").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("node").Inc()
		return "", fmt.Errorf("propose: %w", err)
	}

	text, err := unwrapResult("propose", &resp.StringResult)
	if err != nil {
		metrics.Proposals.WithLabelValues("rejected").Inc()
		return "", err
	}

	hash, err := ParseProposeResult(text)
	if err != nil {
		return "", err
	}

	metrics.Proposals.WithLabelValues("created").Inc()
	slog.Debug("Block proposed", "block_hash", hash)
	return hash, nil
}

// FullDeploy deploys data and proposes a block containing it
func (c *WriteClient) FullDeploy(ctx context.Context, key *secp256k1.PrivateKey, data models.DeployData) (models.BlockID, error) {
	if _, err := c.Deploy(ctx, key, data); err != nil {
		return "", err
	}
	return c.Propose(ctx)
}

// HeadBlockIndex returns the block number of the latest main chain block, or 0 when the
// chain has no blocks yet
func (c *WriteClient) HeadBlockIndex(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.NodeRequestDuration.WithLabelValues("show_main_chain").Observe(time.Since(start).Seconds())
	}()

	stream, err := c.deployConn.NewStream(ctx, showMainChainDesc, casper.MethodShowMainChain)
	if err != nil {
		return 0, fmt.Errorf("showMainChain: %w", err)
	}
	if err := stream.SendMsg(&casper.BlocksQuery{Depth: 1}); err != nil {
		return 0, fmt.Errorf("showMainChain: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return 0, fmt.Errorf("showMainChain: %w", err)
	}

	var resp casper.BlockInfoResponse
	if err := stream.RecvMsg(&resp); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("showMainChain: %w", err)
	}

	switch {
	case resp.Error != nil:
		return 0, &RejectedError{Op: "show main chain", Messages: resp.Error.Messages}
	case resp.BlockInfo != nil:
		if resp.BlockInfo.BlockNumber < 0 {
			return 0, fmt.Errorf("%w: negative block number %d", ErrUnexpectedResponse, resp.BlockInfo.BlockNumber)
		}
		return uint64(resp.BlockInfo.BlockNumber), nil
	default:
		return 0, nil
	}
}
