package soletic

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// DefaultBatchLimit is the largest page getSignaturesForAddress accepts.
	DefaultBatchLimit = 1000
	// DefaultKeepLast bounds the oldest window handed to the resolver.
	DefaultKeepLast = 100
)

// Paginator walks an address's signature history back to its oldest page.
type Paginator struct {
	Client     RPCClient
	Logger     Logger
	BatchLimit int
	KeepLast   int
}

// NewPaginator returns a paginator with the default page and window sizes.
func NewPaginator(client RPCClient, logger Logger) *Paginator {
	return &Paginator{
		Client:     client,
		Logger:     logger,
		BatchLimit: DefaultBatchLimit,
		KeepLast:   DefaultKeepLast,
	}
}

// Oldest returns at most KeepLast of the earliest signatures recorded for
// pubkey, oldest first. Only the final short page is kept in memory; every
// full page is inspected for its last signature and dropped. Any RPC failure
// aborts the walk.
func (p *Paginator) Oldest(ctx context.Context, pubkey solana.PublicKey) ([]SignatureRecord, error) {
	limit := p.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	keep := p.KeepLast
	if keep <= 0 {
		keep = DefaultKeepLast
	}

	before := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		signatures, err := p.Client.GetSignaturesForAddress(ctx, pubkey, limit, before)
		if err != nil {
			return nil, fmt.Errorf("signatures for %s page %d: %w", pubkey, pages, err)
		}
		pages++

		if len(signatures) > limit {
			return nil, newRPCError(codeNoUpstreamResponse, fmt.Errorf("signatures for %s: page of %d exceeds limit %d", pubkey, len(signatures), limit))
		}

		if len(signatures) == limit {
			before = signatures[len(signatures)-1].Signature
			p.logf("signatures address=%s page=%d full, continuing before=%s", pubkey, pages, before)
			continue
		}

		if len(signatures) == 0 {
			p.logf("signatures address=%s page=%d empty, history exhausted", pubkey, pages)
			return nil, nil
		}

		window := signatures
		if len(window) > keep {
			window = window[len(window)-keep:]
		}
		oldest := make([]SignatureRecord, len(window))
		for i, record := range window {
			oldest[len(window)-1-i] = record
		}
		p.logf("signatures address=%s pages=%d final=%d kept=%d", pubkey, pages, len(signatures), len(oldest))
		return oldest, nil
	}
}

func (p *Paginator) logf(format string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Debugf(format, args...)
}
