package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"veridian/internal/contract"
	"veridian/internal/logger"
	"veridian/internal/netutil"
)

// ChainConfig describes how to reach one EVM chain: JSON-RPC endpoints for
// the bytecode probe and an explorer API for verified source.
type ChainConfig struct {
	Name        string   `yaml:"name"`
	ChainID     int      `yaml:"chainId"`
	RPCURLs     []string `yaml:"rpcUrls"`
	ExplorerURL string   `yaml:"explorerUrl"`
	APIKeys     []string `yaml:"apiKeys"`
	Proxy       string   `yaml:"-"`
}

const rpcDialTimeout = 15 * time.Second

type rpcPool struct {
	urls          []string
	clients       []*ethclient.Client
	current       int
	mutex         sync.RWMutex
	timeout       time.Duration
	healthWindow  time.Duration
	lastHealthyAt []time.Time
}

func dialEthClient(rawURL string, timeout time.Duration, proxy string) (*ethclient.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty rpc url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		httpClient, err := netutil.NewHTTPClient(proxy, timeout)
		if err != nil {
			return nil, err
		}
		rpcClient, err := rpc.DialHTTPWithClient(rawURL, httpClient)
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rpcClient), nil
	default:
		return ethclient.Dial(rawURL)
	}
}

func newRPCPool(urls []string, timeout time.Duration, proxy string) (*rpcPool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	pool := &rpcPool{
		urls:          urls,
		timeout:       timeout,
		clients:       make([]*ethclient.Client, len(urls)),
		healthWindow:  5 * time.Second,
		lastHealthyAt: make([]time.Time, len(urls)),
	}

	for i, u := range urls {
		client, err := dialEthClient(u, timeout, proxy)
		if err != nil {
			logger.Warn("Failed to connect to RPC [%s]: %v", u, err)
			continue
		}
		pool.clients[i] = client
	}

	pool.current = rand.Intn(len(pool.clients))
	return pool, nil
}

func (p *rpcPool) client() (*ethclient.Client, error) {
	p.mutex.RLock()
	current := p.current
	timeout := p.timeout
	window := p.healthWindow
	var client *ethclient.Client
	var lastHealthy time.Time
	if current >= 0 && current < len(p.clients) {
		client = p.clients[current]
		lastHealthy = p.lastHealthyAt[current]
	}
	p.mutex.RUnlock()

	if client != nil {
		if !lastHealthy.IsZero() && time.Since(lastHealthy) < window {
			return client, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := client.BlockNumber(ctx); err == nil {
			p.mutex.Lock()
			if current >= 0 && current < len(p.lastHealthyAt) {
				p.lastHealthyAt[current] = time.Now()
			}
			p.mutex.Unlock()
			return client, nil
		}
	}

	return p.switchToNext()
}

func (p *rpcPool) switchToNext() (*ethclient.Client, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i := 0; i < len(p.clients); i++ {
		next := (p.current + 1 + i) % len(p.clients)
		if p.clients[next] == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		_, err := p.clients[next].BlockNumber(ctx)
		cancel()
		if err == nil {
			p.current = next
			p.lastHealthyAt[next] = time.Now()
			logger.Info("🔄 Switched to RPC: %s", p.urls[next])
			return p.clients[next], nil
		}
	}

	return nil, fmt.Errorf("all RPC nodes are unavailable")
}

func (p *rpcPool) close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, client := range p.clients {
		if client != nil {
			client.Close()
		}
	}
}

// Fetcher pulls verified contract source for a deployed address. The RPC
// pool is optional: without it the bytecode probe is skipped and only the
// explorer is consulted.
type Fetcher struct {
	cfg     ChainConfig
	pool    *rpcPool
	limiter *rateTicker
}

func NewFetcher(cfg ChainConfig) (*Fetcher, error) {
	if strings.TrimSpace(cfg.ExplorerURL) == "" {
		return nil, fmt.Errorf("chain %q has no explorer API configured", cfg.Name)
	}

	var pool *rpcPool
	if len(cfg.RPCURLs) > 0 {
		p, err := newRPCPool(cfg.RPCURLs, rpcDialTimeout, cfg.Proxy)
		if err != nil {
			logger.Warn("RPC pool unavailable for %s: %v", cfg.Name, err)
		} else {
			pool = p
		}
	}

	requestsPerSecond := 5
	if n := len(cfg.APIKeys); n > 1 {
		requestsPerSecond = 5 * n
	}

	return &Fetcher{
		cfg:     cfg,
		pool:    pool,
		limiter: newRateTicker(requestsPerSecond),
	}, nil
}

// FetchProject resolves a deployed address to the project metadata and the
// contracts of its verified source, following one proxy hop when the explorer
// flags the address as a proxy.
func (f *Fetcher) FetchProject(ctx context.Context, address string) (contract.Project, []contract.Contract, error) {
	var project contract.Project

	addr := strings.TrimSpace(address)
	if !common.IsHexAddress(addr) {
		return project, nil, fmt.Errorf("invalid contract address: %s", address)
	}
	checksummed := common.HexToAddress(addr)

	if f.pool != nil {
		code, err := f.probeCode(ctx, checksummed)
		if err != nil {
			logger.Warn("Bytecode probe failed for %s: %v", checksummed.Hex(), err)
		} else if len(code) == 0 {
			return project, nil, fmt.Errorf("no code at %s (EOA or self-destructed)", checksummed.Hex())
		}
	}

	details, verified, err := f.fetchSourceDetails(ctx, checksummed.Hex())
	if err != nil {
		return project, nil, fmt.Errorf("explorer lookup for %s failed: %w", checksummed.Hex(), err)
	}
	if !verified || details == nil {
		return project, nil, fmt.Errorf("contract %s has no verified source on %s", checksummed.Hex(), f.cfg.Name)
	}

	source := details.SourceCode
	if details.Proxy == "1" && common.IsHexAddress(details.Implementation) {
		impl := common.HexToAddress(details.Implementation)
		logger.Info("Proxy detected, following implementation %s", impl.Hex())
		implDetails, implVerified, implErr := f.fetchSourceDetails(ctx, impl.Hex())
		switch {
		case implErr != nil:
			logger.Warn("Implementation lookup failed: %v (keeping proxy source)", implErr)
		case implVerified && implDetails != nil && strings.TrimSpace(implDetails.SourceCode) != "":
			source = implDetails.SourceCode
			if implDetails.ContractName != "" {
				details.ContractName = implDetails.ContractName
			}
		}
	}

	contracts := SplitSourceBundle(details.ContractName, source)
	if len(contracts) == 0 {
		return project, nil, fmt.Errorf("verified source for %s is empty", checksummed.Hex())
	}

	name := details.ContractName
	if name == "" {
		name = checksummed.Hex()
	}
	project = contract.Project{
		Name:        name,
		Description: fmt.Sprintf("Deployed at %s on %s, compiler %s", checksummed.Hex(), f.cfg.Name, details.CompilerVersion),
	}
	return project, contracts, nil
}

func (f *Fetcher) probeCode(ctx context.Context, addr common.Address) ([]byte, error) {
	client, err := f.pool.client()
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, f.pool.timeout)
	defer cancel()
	return client.CodeAt(cctx, addr, nil)
}

func (f *Fetcher) Close() {
	if f.pool != nil {
		f.pool.close()
	}
	f.limiter.stop()
}
