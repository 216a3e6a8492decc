package soletic

import (
	"context"
	"strconv"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Result is either a deployment timestamp or a structured failure.
// UnknownTimestamp is a successful result.
type Result struct {
	Timestamp int64
	Err       *Error
}

// OK reports whether the lookup completed without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// String renders the timestamp, or "<code> | <message>" for failures.
func (r Result) String() string {
	if r.Err != nil {
		return r.Err.Format()
	}
	return strconv.FormatInt(r.Timestamp, 10)
}

// ClientFactory returns the RPC client serving a network.
type ClientFactory func(network Network) RPCClient

// HeliusClients builds one rate limited client per network, authenticated with apiKey.
func HeliusClients(apiKey string, logger Logger) ClientFactory {
	var mu sync.Mutex
	clients := make(map[Network]RPCClient)
	return func(network Network) RPCClient {
		mu.Lock()
		defer mu.Unlock()
		if client, ok := clients[network]; ok {
			return client
		}
		client := NewRPCSolanaClient(network, apiKey, logger)
		clients[network] = client
		return client
	}
}

// Analyzer resolves when a program was first deployed.
type Analyzer struct {
	clients    ClientFactory
	cache      DeploymentCache
	logger     Logger
	batchLimit int
	keepLast   int
	racing     bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache enables cache lookups and stores for calls made with useCache.
func WithCache(cache DeploymentCache) Option {
	return func(a *Analyzer) { a.cache = cache }
}

// WithLogger routes analyzer logs to logger. A nil logger keeps the discard default.
func WithLogger(logger Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRacing walks the program and program-data histories concurrently for
// upgradeable program accounts.
func WithRacing(enabled bool) Option {
	return func(a *Analyzer) { a.racing = enabled }
}

// WithPagination overrides the page size and the oldest window size.
func WithPagination(batchLimit, keepLast int) Option {
	return func(a *Analyzer) {
		a.batchLimit = batchLimit
		a.keepLast = keepLast
	}
}

// NewAnalyzer returns an analyzer using clients for network access.
func NewAnalyzer(clients ClientFactory, opts ...Option) *Analyzer {
	a := &Analyzer{
		clients:    clients,
		logger:     NewDiscardLogger(),
		batchLimit: DefaultBatchLimit,
		keepLast:   DefaultKeepLast,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type deploymentState int

const (
	stateValidating deploymentState = iota
	stateClassifying
	stateResolvingProgramAccount
	stateResolvingProgramData
	stateResolvingLegacy
	stateDone
	stateFailed
)

func (s deploymentState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateClassifying:
		return "classifying"
	case stateResolvingProgramAccount:
		return "resolving/program-account"
	case stateResolvingProgramData:
		return "resolving/program-data"
	case stateResolvingLegacy:
		return "resolving/legacy"
	case stateDone:
		return "done"
	default:
		return "failed"
	}
}

// DeploymentTimestamp returns the block time of the earliest successful
// transaction recorded for the program. With useCache, a cached timestamp is
// returned without any RPC call and new timestamps are stored; UnknownTimestamp
// and failures are never cached.
func (a *Analyzer) DeploymentTimestamp(ctx context.Context, address string, network Network, useCache bool) (result Result) {
	defer func() { recordResult(result) }()

	key := CacheKey{Address: address, Network: network}
	if useCache && a.cache != nil {
		if timestamp, ok := a.cache.Get(key); ok {
			a.logger.Printf("cache hit address=%s network=%s timestamp=%d", address, network, timestamp)
			return Result{Timestamp: timestamp}
		}
	}

	a.enter(stateValidating, address)
	pubkey, err := ParseProgramAddress(address)
	if err != nil {
		return a.fail(address, err)
	}
	client := a.clients(network)
	account, err := FetchProgramAccount(ctx, client, pubkey)
	if err != nil {
		return a.fail(address, err)
	}

	a.enter(stateClassifying, address)
	classification, err := ClassifyLoader(account)
	if err != nil {
		return a.fail(address, err)
	}

	var records []SignatureRecord
	switch classification.Kind {
	case LoaderUpgradeableProgram:
		a.enter(stateResolvingProgramAccount, address)
		records, err = a.programAccountHistory(ctx, client, pubkey, classification.ProgramData)
	case LoaderUpgradeableProgramData:
		a.enter(stateResolvingProgramData, address)
		records, err = a.paginator(client, a.logger).Oldest(ctx, pubkey)
	default:
		a.enter(stateResolvingLegacy, address)
		if classification.KnownLegacyLoader {
			a.logger.Warnf("EXPECT DEGRADED PERFORMANCE - program account uses legacy BPF Loader")
		} else {
			a.logger.Warnf("EXPECT DEGRADED PERFORMANCE - program owned by %s, walking program history", account.Owner)
		}
		records, err = a.paginator(client, a.logger).Oldest(ctx, pubkey)
	}
	if err != nil {
		return a.fail(address, err)
	}

	timestamp := FirstValidBlockTime(records)
	a.enter(stateDone, address)
	a.logger.Printf("resolved address=%s network=%s loader=%s signatures=%d timestamp=%d",
		address, network, classification.Kind, len(records), timestamp)

	if useCache && a.cache != nil && timestamp != UnknownTimestamp {
		if err := a.cache.Put(key, timestamp); err != nil {
			a.logger.Warnf("Error saving to persistent cache: %v", err)
		}
		a.cache.EvictIfNeeded()
	}
	return Result{Timestamp: timestamp}
}

func (a *Analyzer) enter(state deploymentState, address string) {
	a.logger.Debugf("state=%s address=%s", state, address)
}

func (a *Analyzer) fail(address string, err error) Result {
	structured := asError(err)
	a.enter(stateFailed, address)
	a.logger.Errorf("address=%s kind=%s code=%d: %v", address, structured.Kind, structured.Code, err)
	return Result{Err: structured}
}

func (a *Analyzer) paginator(client RPCClient, logger Logger) *Paginator {
	return &Paginator{
		Client:     client,
		Logger:     logger,
		BatchLimit: a.batchLimit,
		KeepLast:   a.keepLast,
	}
}

// programAccountHistory prefers the program-data account, which carries fewer
// and more relevant signatures, and falls back to the program account when
// the program-data history is empty.
func (a *Analyzer) programAccountHistory(ctx context.Context, client RPCClient, program, programData solana.PublicKey) ([]SignatureRecord, error) {
	if a.racing {
		return a.raceProgramHistories(ctx, client, program, programData)
	}

	records, err := a.paginator(client, a.logger).Oldest(ctx, programData)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records, nil
	}
	a.logger.Printf("program data %s has no signatures, falling back to program %s", programData, program)
	return a.paginator(client, a.logger).Oldest(ctx, program)
}

type historyOutcome struct {
	records []SignatureRecord
	err     error
}

// raceProgramHistories walks both histories at once. The program-data walk
// decides the result unless it comes back empty, in which case the program
// walk is used. The walk that is not needed is cancelled, and both goroutines
// have exited before this returns.
func (a *Analyzer) raceProgramHistories(ctx context.Context, client RPCClient, program, programData solana.PublicKey) ([]SignatureRecord, error) {
	var wg sync.WaitGroup
	defer wg.Wait()

	dataCtx, cancelData := context.WithCancel(ctx)
	defer cancelData()
	programCtx, cancelProgram := context.WithCancel(ctx)
	defer cancelProgram()

	walk := func(ctx context.Context, pubkey solana.PublicKey, out chan<- historyOutcome) {
		defer wg.Done()
		records, err := a.paginator(client, contextLogger{ctx: ctx, Logger: a.logger}).Oldest(ctx, pubkey)
		out <- historyOutcome{records: records, err: err}
	}

	dataCh := make(chan historyOutcome, 1)
	programCh := make(chan historyOutcome, 1)
	wg.Add(2)
	go walk(dataCtx, programData, dataCh)
	go walk(programCtx, program, programCh)

	var data historyOutcome
	select {
	case data = <-dataCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if data.err != nil || len(data.records) > 0 {
		cancelProgram()
		return data.records, data.err
	}

	a.logger.Printf("program data %s has no signatures, using program %s history", programData, program)
	select {
	case outcome := <-programCh:
		return outcome.records, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// contextLogger drops entries once its context is cancelled.
type contextLogger struct {
	ctx context.Context
	Logger
}

func (l contextLogger) Printf(format string, args ...any) {
	if l.ctx.Err() == nil {
		l.Logger.Printf(format, args...)
	}
}

func (l contextLogger) Debugf(format string, args ...any) {
	if l.ctx.Err() == nil {
		l.Logger.Debugf(format, args...)
	}
}

func (l contextLogger) Warnf(format string, args ...any) {
	if l.ctx.Err() == nil {
		l.Logger.Warnf(format, args...)
	}
}

func (l contextLogger) Errorf(format string, args ...any) {
	if l.ctx.Err() == nil {
		l.Logger.Errorf(format, args...)
	}
}
