// Package ai provides the inference gateway used by the audit pipeline:
// provider clients behind request pacing, a concurrency cap, multi-key
// rotation and adaptive slowdown when the upstream degrades.
package ai

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"veridian/internal/ai/client"
	"veridian/internal/logger"
)

// Options mirrors client.Options so callers don't import the client package.
type Options = client.Options

type ManagerConfig struct {
	Provider        string
	APIKeys         []string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	Proxy           string
	RequestInterval time.Duration
	MaxConcurrent   int
}

// Manager paces and dispatches completion requests. Safe for concurrent use.
type Manager struct {
	clients []*client.Client
	next    uint64

	limiter *rateLimiter
	sem     chan struct{}

	mu          sync.Mutex
	calls       int
	failures    int
	ewmaLatency time.Duration
}

const (
	ewmaAlpha       = 0.3
	slowLatency     = 15 * time.Second
	fastLatency     = 3 * time.Second
	intervalGrowth  = 1.25
	intervalShrink  = 0.8
	maxIntervalMult = 10
)

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 500 * time.Millisecond
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}

	keys := cfg.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}

	clients := make([]*client.Client, 0, len(keys))
	for _, key := range keys {
		c, err := client.New(client.Config{
			Provider: cfg.Provider,
			APIKey:   key,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
			Proxy:    cfg.Proxy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		clients = append(clients, c)
	}
	if len(clients) > 1 {
		logger.Info("🔑 Using %d API keys in rotation", len(clients))
	}

	return &Manager{
		clients: clients,
		limiter: newRateLimiter(cfg.RequestInterval),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Complete issues one paced completion call and returns the raw model text.
func (m *Manager) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-m.sem }()

	c := m.pick()
	start := time.Now()
	text, err := c.Send(ctx, systemPrompt, userPrompt, opts)
	m.record(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", c.Name(), err)
	}
	return text, nil
}

func (m *Manager) pick() *client.Client {
	idx := atomic.AddUint64(&m.next, 1)
	return m.clients[idx%uint64(len(m.clients))]
}

// record updates call stats and nudges the request interval: sustained slow
// responses back off, sustained fast ones recover toward the configured rate.
func (m *Manager) record(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if err != nil {
		m.failures++
	}

	if m.ewmaLatency == 0 {
		m.ewmaLatency = latency
	} else {
		m.ewmaLatency = time.Duration(ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(m.ewmaLatency))
	}

	switch {
	case m.ewmaLatency > slowLatency:
		if m.limiter.Scale(intervalGrowth, maxIntervalMult) {
			logger.Debug("Upstream slow (ewma=%s), request interval raised to %s", m.ewmaLatency, m.limiter.Interval())
		}
	case m.ewmaLatency < fastLatency:
		m.limiter.Scale(intervalShrink, maxIntervalMult)
	}
}

// Stats reports total and failed call counts for the end-of-run summary.
func (m *Manager) Stats() (calls, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.failures
}

func (m *Manager) Name() string {
	return m.clients[0].Name()
}

func (m *Manager) Close() error {
	for _, c := range m.clients {
		c.Close()
	}
	return nil
}

// rateLimiter spaces calls by at least one interval, reserving slots so
// concurrent waiters queue instead of stampeding.
type rateLimiter struct {
	mu       sync.Mutex
	base     time.Duration
	interval time.Duration
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{base: interval, interval: interval}
}

func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	next := r.last.Add(r.interval)
	var wait time.Duration
	if now.Before(next) {
		wait = next.Sub(now)
		r.last = next
	} else {
		r.last = now
	}
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Scale multiplies the interval, clamped to [base, base*maxMult].
// Reports whether the interval changed.
func (r *rateLimiter) Scale(factor float64, maxMult int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	scaled := time.Duration(float64(r.interval) * factor)
	if scaled < r.base {
		scaled = r.base
	}
	if upper := r.base * time.Duration(maxMult); scaled > upper {
		scaled = upper
	}
	changed := scaled != r.interval
	r.interval = scaled
	return changed
}

func (r *rateLimiter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}
