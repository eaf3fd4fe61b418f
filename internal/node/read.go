package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"firefly/internal/metrics"
)

const maxErrorBodySize = 64 << 10

// ReadClient runs query code on the node's observer and decodes the returned value.
// It is safe for concurrent use.
type ReadClient struct {
	url    string
	client *http.Client
}

// ReadOption customizes a ReadClient
type ReadOption func(*ReadClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) ReadOption {
	return func(c *ReadClient) { c.client = client }
}

// NewReadClient creates a client for the observer at url
func NewReadClient(url string, opts ...ReadOption) *ReadClient {
	c := &ReadClient{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs source and decodes its first returned value into T
func Query[T any](ctx context.Context, c *ReadClient, source string) (T, error) {
	var out T
	err := c.QueryInto(ctx, source, &out)
	return out, err
}

// QueryInto runs source and decodes its first returned value into out, which must be a
// non-nil pointer. Struct fields are matched by their json tags.
func (c *ReadClient) QueryInto(ctx context.Context, source string, out any) error {
	start := time.Now()
	defer func() {
		metrics.NodeRequestDuration.WithLabelValues("explore_deploy").Observe(time.Since(start).Seconds())
	}()

	expr, err := c.firstExpr(ctx, source)
	if err != nil {
		metrics.Queries.WithLabelValues("failed").Inc()
		return err
	}

	if err := DecodeGeneric(expr.Generic(), out); err != nil {
		metrics.Queries.WithLabelValues("failed").Inc()
		return err
	}

	metrics.Queries.WithLabelValues("ok").Inc()
	return nil
}

// Explore runs source and returns its first value as an expression tree
func (c *ReadClient) Explore(ctx context.Context, source string) (Expr, error) {
	return c.firstExpr(ctx, source)
}

func (c *ReadClient) firstExpr(ctx context.Context, source string) (Expr, error) {
	body, err := c.exploreDeploy(ctx, source)
	if err != nil {
		return Expr{}, err
	}

	var reply struct {
		Expr json.RawMessage `json:"expr"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return Expr{}, &DecodeError{Stage: StageExpression, Err: err}
	}

	// anything other than a non-empty array has no value at expr/0
	var values []json.RawMessage
	if err := json.Unmarshal(reply.Expr, &values); err != nil || len(values) == 0 {
		return Expr{}, ErrReturnValueMissing
	}

	var expr Expr
	if err := json.Unmarshal(values[0], &expr); err != nil {
		return Expr{}, &DecodeError{Stage: StageExpression, Err: err}
	}
	return expr, nil
}

func (c *ReadClient) exploreDeploy(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/explore-deploy", strings.NewReader(source))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("observer").Inc()
		return nil, fmt.Errorf("explore-deploy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("explore-deploy: read body: %w", err)
	}

	slog.Debug("explore-deploy response", "size", len(body))
	return body, nil
}

// GenericDecoder is implemented by result types that decode themselves from generic data
type GenericDecoder interface {
	DecodeGeneric(data any) error
}

var genericDecoderType = reflect.TypeOf((*GenericDecoder)(nil)).Elem()

// DecodeGeneric decodes generic data produced by Expr.Generic into out
func DecodeGeneric(data any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.DecodeHookFuncType(genericDecoderHook),
	})
	if err != nil {
		return &DecodeError{Stage: StageResult, Err: err}
	}
	if err := decoder.Decode(data); err != nil {
		return &DecodeError{Stage: StageResult, Err: err}
	}
	return nil
}

func genericDecoderHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if !reflect.PointerTo(to).Implements(genericDecoderType) {
		return data, nil
	}

	target := reflect.New(to)
	if err := target.Interface().(GenericDecoder).DecodeGeneric(data); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}

// Either is the (true, value) / (false, error) tuple contracts use to report outcomes
type Either[L, R any] struct {
	Left  *L
	Right *R
}

// Result returns the right value or wraps the left one as an error
func (e Either[L, R]) Result() (R, error) {
	if e.Right != nil {
		return *e.Right, nil
	}

	var zero R
	if e.Left != nil {
		return zero, fmt.Errorf("contract returned failure: %v", *e.Left)
	}
	return zero, fmt.Errorf("contract returned no outcome")
}

// DecodeGeneric implements GenericDecoder
func (e *Either[L, R]) DecodeGeneric(data any) error {
	tuple, ok := data.([]any)
	if !ok || len(tuple) != 2 {
		return fmt.Errorf("expected a (bool, value) tuple, got %T", data)
	}
	valid, ok := tuple[0].(bool)
	if !ok {
		return fmt.Errorf("expected a bool tag, got %T", tuple[0])
	}

	*e = Either[L, R]{}
	if valid {
		var right R
		if err := DecodeGeneric(tuple[1], &right); err != nil {
			return err
		}
		e.Right = &right
		return nil
	}

	var left L
	if err := DecodeGeneric(tuple[1], &left); err != nil {
		return err
	}
	e.Left = &left
	return nil
}
