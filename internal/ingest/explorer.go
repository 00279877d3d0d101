package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"veridian/internal/logger"
	"veridian/internal/netutil"
)

const explorerTimeout = 20 * time.Second

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceDetails struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	LicenseType     string `json:"LicenseType"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

var nextAPIKey uint64

func (f *Fetcher) apiKey() string {
	if len(f.cfg.APIKeys) == 0 {
		return ""
	}
	n := atomic.AddUint64(&nextAPIKey, 1)
	return f.cfg.APIKeys[int((n-1)%uint64(len(f.cfg.APIKeys)))]
}

func (f *Fetcher) buildSourceURL(address string) (string, error) {
	base := strings.TrimRight(f.cfg.ExplorerURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse explorer URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/api") {
		u.Path = strings.TrimRight(u.Path, "/") + "/api"
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	if key := f.apiKey(); key != "" {
		q.Set("apikey", key)
	}
	if f.cfg.ChainID > 0 {
		q.Set("chainid", fmt.Sprintf("%d", f.cfg.ChainID))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchSourceDetails hits the explorer getsourcecode endpoint. verified is
// false when the explorer answers but holds no source for the address.
func (f *Fetcher) fetchSourceDetails(ctx context.Context, address string) (*sourceDetails, bool, error) {
	f.limiter.wait()

	endpoint, err := f.buildSourceURL(address)
	if err != nil {
		return nil, false, err
	}

	client, err := netutil.NewHTTPClient(f.cfg.Proxy, explorerTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create explorer HTTP client: %w", err)
	}

	var lastErr error
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return nil, false, reqErr
		}
		req.Header.Set("User-Agent", "Veridian/1.0")

		resp, doErr := client.Do(req)
		if doErr != nil {
			lastErr = doErr
			if isTemporaryNetErr(doErr) && attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, false, fmt.Errorf("explorer request failed: %w", doErr)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if isTemporaryNetErr(readErr) && attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, false, fmt.Errorf("failed to read explorer response: %w", readErr)
		}

		if resp.StatusCode != http.StatusOK {
			snippet := string(body)
			if len(snippet) > 1024 {
				snippet = snippet[:1024]
			}
			return nil, false, fmt.Errorf("explorer returned status %d: %s", resp.StatusCode, snippet)
		}

		var parsed explorerResponse
		if jerr := json.Unmarshal(body, &parsed); jerr != nil {
			lastErr = jerr
			if attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 300 * time.Millisecond)
				continue
			}
			return nil, false, fmt.Errorf("failed to parse explorer JSON: %w", jerr)
		}

		if parsed.Status != "1" {
			logger.Warn("Explorer declined request: %s %s", parsed.Message, string(parsed.Result))
			return nil, false, nil
		}

		var entries []sourceDetails
		if jerr := json.Unmarshal(parsed.Result, &entries); jerr != nil || len(entries) == 0 {
			return nil, false, nil
		}
		entry := entries[0]
		if strings.TrimSpace(entry.SourceCode) == "" {
			return nil, false, nil
		}
		return &entry, true, nil
	}

	return nil, false, fmt.Errorf("explorer request failed after %d attempts: %w", maxAttempts, lastErr)
}

func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return err == io.ErrUnexpectedEOF || err == io.EOF
}

type rateTicker struct {
	ticker *time.Ticker
}

func newRateTicker(requestsPerSecond int) *rateTicker {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &rateTicker{
		ticker: time.NewTicker(time.Second / time.Duration(requestsPerSecond)),
	}
}

func (r *rateTicker) wait() {
	<-r.ticker.C
}

func (r *rateTicker) stop() {
	r.ticker.Stop()
}
