package soletic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

const defaultHTTPTimeout = 30 * time.Second

var solanaRPCLogger = NewLogger("solana-rpc")

// RPCClient is the slice of the Solana JSON-RPC API needed to date a program.
type RPCClient interface {
	// GetAccountInfo returns nil without error when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*AccountInfo, error)
	// GetSignaturesForAddress returns up to limit signatures strictly older than
	// before (newest first). An empty before starts from the most recent one.
	GetSignaturesForAddress(ctx context.Context, pubkey solana.PublicKey, limit int, before string) ([]SignatureRecord, error)
}

// AccountInfo is the snapshot of an account returned by getAccountInfo.
type AccountInfo struct {
	Owner      solana.PublicKey
	Executable bool
	Lamports   uint64
	Data       []byte
}

// SignatureRecord references a transaction touching an address.
type SignatureRecord struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Err       json.RawMessage
}

// Failed reports whether the transaction carried an error.
func (r SignatureRecord) Failed() bool {
	trimmed := bytes.TrimSpace(r.Err)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// RPCSolanaClient calls a Solana JSON-RPC endpoint, authenticating with a bearer token.
// The fields must be set before the first call; the client is safe for
// concurrent use after that.
type RPCSolanaClient struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Logger     Logger

	once sync.Once
	rpc  *rpc.Client
}

// NewRPCSolanaClient returns a client for the network's Helius endpoint.
func NewRPCSolanaClient(network Network, apiKey string, logger Logger) *RPCSolanaClient {
	endpoint := network.Endpoint()
	return &RPCSolanaClient{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		HTTPClient: newRateLimitedHTTPClient(endpoint),
		Logger:     logger,
	}
}

func (c *RPCSolanaClient) logger() Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return solanaRPCLogger
}

func (c *RPCSolanaClient) client() *rpc.Client {
	c.once.Do(func() {
		if c.Endpoint == "" {
			panic("RPCSolanaClient endpoint not configured")
		}
		httpClient := c.HTTPClient
		if httpClient == nil {
			httpClient = newRateLimitedHTTPClient(c.Endpoint)
		}
		var headers map[string]string
		if c.APIKey != "" {
			headers = map[string]string{"Authorization": "Bearer " + c.APIKey}
		}
		c.rpc = rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(c.Endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient:    httpClient,
			CustomHeaders: headers,
		}))
	})
	return c.rpc
}

// GetAccountInfo fetches the base64 encoded account at pubkey.
func (c *RPCSolanaClient) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*AccountInfo, error) {
	c.logger().Debugf("getAccountInfo address=%s", pubkey)

	incrementMethodCount("getAccountInfo")
	out, err := c.client().GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentFinalized,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.mapError(ctx, "getAccountInfo", err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	account := &AccountInfo{
		Owner:      out.Value.Owner,
		Executable: out.Value.Executable,
		Lamports:   out.Value.Lamports,
	}
	if out.Value.Data != nil {
		account.Data = out.Value.Data.GetBinary()
	}
	return account, nil
}

// GetSignaturesForAddress returns signatures touching the address, newest first.
func (c *RPCSolanaClient) GetSignaturesForAddress(ctx context.Context, pubkey solana.PublicKey, limit int, before string) ([]SignatureRecord, error) {
	if limit <= 0 {
		limit = 1
	}

	c.logger().Debugf("getSignaturesForAddress address=%s limit=%d before=%s", pubkey, limit, before)

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	}
	if before != "" {
		cursor, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, newRPCError(codeNoUpstreamResponse, fmt.Errorf("decode before cursor %q: %w", before, err))
		}
		opts.Before = cursor
	}

	incrementMethodCount("getSignaturesForAddress")
	out, err := c.client().GetSignaturesForAddressWithOpts(ctx, pubkey, opts)
	if err != nil {
		return nil, c.mapError(ctx, "getSignaturesForAddress", err)
	}

	results := make([]SignatureRecord, 0, len(out))
	for _, item := range out {
		if item == nil {
			continue
		}
		record := SignatureRecord{
			Signature: item.Signature.String(),
			Slot:      item.Slot,
		}
		if item.BlockTime != nil {
			blockTime := int64(*item.BlockTime)
			record.BlockTime = &blockTime
		}
		if item.Err != nil {
			raw, err := json.Marshal(item.Err)
			if err != nil {
				return nil, newRPCError(codeNoUpstreamResponse, fmt.Errorf("encode transaction error for %s: %w", record.Signature, err))
			}
			record.Err = raw
		}
		results = append(results, record)
	}
	return results, nil
}

// mapError turns a jsonrpc failure into an RPC error. Non-2xx statuses keep
// their code; error objects and transport failures map to -1.
func (c *RPCSolanaClient) mapError(ctx context.Context, method string, err error) error {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == http.StatusTooManyRequests {
			c.logger().Warnf("%s rate limited: %v", method, err)
		} else {
			c.logger().Errorf("%s status=%d: %v", method, httpErr.Code, err)
		}
		return newRPCError(httpErr.Code, err)
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		c.logger().Errorf("%s rpc error %d: %s", method, rpcErr.Code, rpcErr.Message)
		return newRPCFailure(rpcErr.Code, rpcErr.Message)
	}

	if ctx.Err() == nil {
		c.logger().Errorf("%s transport error: %v", method, err)
	}
	return newRPCError(codeNoUpstreamResponse, fmt.Errorf("rpc request: %w", err))
}

func newRateLimitedHTTPClient(endpoint string) *http.Client {
	transport := http.RoundTripper(&metricsTransport{
		Base:    http.DefaultTransport,
		Counter: externalResponseCounts,
	})
	if limiter := limiterForEndpoint(endpoint); limiter != nil {
		transport = &RateLimitedTransport{
			Limiter: limiter,
			Base:    transport,
		}
	}
	return &http.Client{
		Timeout:   loadDurationEnv(rpcTimeoutEnv, defaultHTTPTimeout),
		Transport: transport,
	}
}
