// Package netutil builds the proxy-aware HTTP clients shared by the
// inference and explorer layers.
package netutil

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	clientCacheMu sync.Mutex
	clientCache   = map[string]*http.Client{}
)

// ValidateProxyURL accepts empty (no proxy) or http/https/socks5 URLs.
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}

// NewHTTPClient returns a client routed through proxyURL when non-empty.
// Clients are cached per (proxy, timeout) pair so connection pools are shared.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	key := strings.TrimSpace(proxyURL) + "|" + timeout.String()
	clientCacheMu.Lock()
	if cached := clientCache[key]; cached != nil {
		clientCacheMu.Unlock()
		return cached, nil
	}
	clientCacheMu.Unlock()

	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: timeout}
	if strings.TrimSpace(proxyURL) != "" {
		parsed, err := url.Parse(strings.TrimSpace(proxyURL))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		client.Transport = &http.Transport{
			Proxy:               http.ProxyURL(parsed),
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		}
	}

	clientCacheMu.Lock()
	if len(clientCache) >= 32 {
		clientCache = map[string]*http.Client{}
	}
	clientCache[key] = client
	clientCacheMu.Unlock()

	return client, nil
}
