package config

import (
	"os"
	"strings"
	"time"
)

// AuditConfiguration is the merged view the CLI hands to the rest of the
// program. Precedence: built-in defaults, then settings.yaml, then
// environment, then explicit flags.
type AuditConfiguration struct {
	Provider        string
	APIKeys         []string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	Proxy           string
	RequestInterval time.Duration
	MaxConcurrent   int

	Target       string
	Chain        string
	ProtocolHint string

	BatchSize      int
	SelectionLimit int
	ReportDir      string

	EnableHistory bool
	HistoryLimit  int
	Verbose       bool
}

func DefaultAuditConfiguration() AuditConfiguration {
	return AuditConfiguration{
		Provider:        "deepseek",
		Timeout:         120 * time.Second,
		RequestInterval: 500 * time.Millisecond,
		MaxConcurrent:   2,
		Chain:           "eth",
		BatchSize:       5,
		SelectionLimit:  8,
		ReportDir:       "reports",
		HistoryLimit:    5,
	}
}

// ApplySettings overlays file settings onto fields flags have not pinned yet.
func (c *AuditConfiguration) ApplySettings(s *Settings) {
	if s == nil {
		return
	}
	if c.Provider == "" {
		c.Provider = s.AI.Default
	}
	if c.Provider == "" {
		c.Provider = "deepseek"
	}

	provider := s.Provider(c.Provider)
	if len(c.APIKeys) == 0 {
		c.APIKeys = provider.Keys()
	}
	if c.BaseURL == "" {
		c.BaseURL = provider.BaseURL
	}
	if c.Model == "" {
		c.Model = provider.Model
	}
	if c.Proxy == "" {
		if provider.Proxy != "" {
			c.Proxy = provider.Proxy
		} else {
			c.Proxy = s.AI.Proxy
		}
	}
	if s.AI.RequestIntervalMS > 0 {
		c.RequestInterval = time.Duration(s.AI.RequestIntervalMS) * time.Millisecond
	}
	if s.AI.MaxConcurrent > 0 {
		c.MaxConcurrent = s.AI.MaxConcurrent
	}

	if c.BatchSize == 0 && s.Audit.BatchSize > 0 {
		c.BatchSize = s.Audit.BatchSize
	}
	if c.SelectionLimit == 0 && s.Audit.SelectionLimit > 0 {
		c.SelectionLimit = s.Audit.SelectionLimit
	}
	if c.ReportDir == "" && s.Audit.ReportDir != "" {
		c.ReportDir = s.Audit.ReportDir
	}
	if s.Audit.HistoryLimit > 0 {
		c.HistoryLimit = s.Audit.HistoryLimit
	}
}

// ApplyEnv picks up the environment escape hatches into fields no flag has
// pinned. VERIDIAN_API_KEY accepts a comma-separated list and beats the file,
// matching how CI secrets arrive.
func (c *AuditConfiguration) ApplyEnv() {
	if raw := strings.TrimSpace(os.Getenv("VERIDIAN_API_KEY")); raw != "" && len(c.APIKeys) == 0 {
		var keys []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, part)
			}
		}
		if len(keys) > 0 {
			c.APIKeys = keys
		}
	}
	if proxy := strings.TrimSpace(os.Getenv("VERIDIAN_PROXY")); proxy != "" && c.Proxy == "" {
		c.Proxy = proxy
	}
	if baseURL := strings.TrimSpace(os.Getenv("VERIDIAN_BASE_URL")); baseURL != "" && c.BaseURL == "" {
		c.BaseURL = baseURL
	}
}

// ApplyDefaults fills every field still at its zero value. Called last so
// flags, environment, and file settings all win over the baked-in defaults.
func (c *AuditConfiguration) ApplyDefaults() {
	def := DefaultAuditConfiguration()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = def.RequestInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.Chain == "" {
		c.Chain = def.Chain
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.SelectionLimit <= 0 {
		c.SelectionLimit = def.SelectionLimit
	}
	if c.ReportDir == "" {
		c.ReportDir = def.ReportDir
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
}
