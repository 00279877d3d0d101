package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSettingsKeys(t *testing.T) {
	t.Run("merges single and list forms", func(t *testing.T) {
		p := ProviderSettings{
			APIKey:  "sk-a",
			APIKeys: []string{" sk-a ", "sk-b", "", "sk-b", " sk-c"},
		}
		assert.Equal(t, []string{"sk-a", "sk-b", "sk-c"}, p.Keys())
	})

	t.Run("single key only", func(t *testing.T) {
		p := ProviderSettings{APIKey: " sk-solo "}
		assert.Equal(t, []string{"sk-solo"}, p.Keys())
	})

	t.Run("empty block yields no keys", func(t *testing.T) {
		assert.Empty(t, ProviderSettings{}.Keys())
	})
}

func TestExplorerSettingsKeys(t *testing.T) {
	e := ExplorerSettings{APIKey: "e1", APIKeys: []string{"e2", "e1"}}
	assert.Equal(t, []string{"e1", "e2"}, e.Keys())
}

func TestSettingsProvider(t *testing.T) {
	s := &Settings{
		AI: AISettings{
			Providers: map[string]ProviderSettings{
				"deepseek": {Model: "deepseek-chat"},
				"openai":   {Model: "gpt-4o"},
				"local":    {Model: "qwen2.5-coder:32b"},
			},
		},
	}

	tests := []struct {
		name      string
		wantModel string
	}{
		{"deepseek", "deepseek-chat"},
		{"openai", "gpt-4o"},
		{" OpenAI ", "gpt-4o"},
		{"gpt4", "gpt-4o"},
		{"chatgpt", "gpt-4o"},
		{"gpt-4o", "gpt-4o"},
		{"ollama", "qwen2.5-coder:32b"},
		{"local-llm", "qwen2.5-coder:32b"},
		{"local_llm", "qwen2.5-coder:32b"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantModel, s.Provider(tt.name).Model, "name=%q", tt.name)
	}

	t.Run("nil settings", func(t *testing.T) {
		var nilSettings *Settings
		assert.Equal(t, ProviderSettings{}, nilSettings.Provider("deepseek"))
	})

	t.Run("no provider blocks", func(t *testing.T) {
		assert.Equal(t, ProviderSettings{}, (&Settings{}).Provider("deepseek"))
	})
}

func TestSettingsChain(t *testing.T) {
	s := &Settings{
		Chains: map[string]ChainSettings{
			"eth": {ChainID: 1},
			"bsc": {ChainID: 56},
		},
	}

	chain, ok := s.Chain(" ETH ")
	require.True(t, ok)
	assert.Equal(t, 1, chain.ChainID)

	chain, ok = s.Chain("bsc")
	require.True(t, ok)
	assert.Equal(t, 56, chain.ChainID)

	_, ok = s.Chain("base")
	assert.False(t, ok)

	var nilSettings *Settings
	_, ok = nilSettings.Chain("eth")
	assert.False(t, ok)
}

func TestDefaultAuditConfiguration(t *testing.T) {
	def := DefaultAuditConfiguration()
	assert.Equal(t, "deepseek", def.Provider)
	assert.Equal(t, 120*time.Second, def.Timeout)
	assert.Equal(t, 500*time.Millisecond, def.RequestInterval)
	assert.Equal(t, 2, def.MaxConcurrent)
	assert.Equal(t, "eth", def.Chain)
	assert.Equal(t, 5, def.BatchSize)
	assert.Equal(t, 8, def.SelectionLimit)
	assert.Equal(t, "reports", def.ReportDir)
	assert.Equal(t, 5, def.HistoryLimit)
}

func TestApplyEnv(t *testing.T) {
	t.Run("fills empty fields", func(t *testing.T) {
		t.Setenv("VERIDIAN_API_KEY", "k1, k2 ,,k3")
		t.Setenv("VERIDIAN_PROXY", "socks5://127.0.0.1:7890")
		t.Setenv("VERIDIAN_BASE_URL", "https://llm.internal/v1")

		var cfg AuditConfiguration
		cfg.ApplyEnv()
		assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.APIKeys)
		assert.Equal(t, "socks5://127.0.0.1:7890", cfg.Proxy)
		assert.Equal(t, "https://llm.internal/v1", cfg.BaseURL)
	})

	t.Run("never overwrites pinned fields", func(t *testing.T) {
		t.Setenv("VERIDIAN_API_KEY", "env-key")
		t.Setenv("VERIDIAN_PROXY", "env-proxy")
		t.Setenv("VERIDIAN_BASE_URL", "env-url")

		cfg := AuditConfiguration{
			APIKeys: []string{"flag-key"},
			Proxy:   "flag-proxy",
			BaseURL: "flag-url",
		}
		cfg.ApplyEnv()
		assert.Equal(t, []string{"flag-key"}, cfg.APIKeys)
		assert.Equal(t, "flag-proxy", cfg.Proxy)
		assert.Equal(t, "flag-url", cfg.BaseURL)
	})

	t.Run("ignores blank values", func(t *testing.T) {
		t.Setenv("VERIDIAN_API_KEY", "  ,  ")
		t.Setenv("VERIDIAN_PROXY", "   ")
		t.Setenv("VERIDIAN_BASE_URL", "")

		var cfg AuditConfiguration
		cfg.ApplyEnv()
		assert.Empty(t, cfg.APIKeys)
		assert.Empty(t, cfg.Proxy)
		assert.Empty(t, cfg.BaseURL)
	})
}

func TestApplySettings(t *testing.T) {
	fileSettings := func() *Settings {
		return &Settings{
			AI: AISettings{
				Default:           "openai",
				RequestIntervalMS: 1200,
				MaxConcurrent:     4,
				Proxy:             "socks5://127.0.0.1:7890",
				Providers: map[string]ProviderSettings{
					"openai": {
						APIKey:  "sk-file",
						BaseURL: "https://api.openai.com/v1",
						Model:   "gpt-4o",
					},
				},
			},
			Audit: AuditSettings{
				BatchSize:      9,
				SelectionLimit: 12,
				ReportDir:      "out",
				HistoryLimit:   7,
			},
		}
	}

	t.Run("fills empty fields from the default provider block", func(t *testing.T) {
		var cfg AuditConfiguration
		cfg.ApplySettings(fileSettings())

		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, []string{"sk-file"}, cfg.APIKeys)
		assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
		assert.Equal(t, "gpt-4o", cfg.Model)
		assert.Equal(t, "socks5://127.0.0.1:7890", cfg.Proxy)
		assert.Equal(t, 1200*time.Millisecond, cfg.RequestInterval)
		assert.Equal(t, 4, cfg.MaxConcurrent)
		assert.Equal(t, 9, cfg.BatchSize)
		assert.Equal(t, 12, cfg.SelectionLimit)
		assert.Equal(t, "out", cfg.ReportDir)
		assert.Equal(t, 7, cfg.HistoryLimit)
	})

	t.Run("provider proxy beats the global proxy", func(t *testing.T) {
		s := fileSettings()
		block := s.AI.Providers["openai"]
		block.Proxy = "http://provider-proxy:8080"
		s.AI.Providers["openai"] = block

		var cfg AuditConfiguration
		cfg.ApplySettings(s)
		assert.Equal(t, "http://provider-proxy:8080", cfg.Proxy)
	})

	t.Run("pinned fields survive the overlay", func(t *testing.T) {
		cfg := AuditConfiguration{
			Provider:       "deepseek",
			APIKeys:        []string{"flag-key"},
			BaseURL:        "https://flag.example/v1",
			Model:          "flag-model",
			Proxy:          "http://flag-proxy",
			BatchSize:      3,
			SelectionLimit: 2,
			ReportDir:      "flag-reports",
		}
		cfg.ApplySettings(fileSettings())

		assert.Equal(t, "deepseek", cfg.Provider)
		assert.Equal(t, []string{"flag-key"}, cfg.APIKeys)
		assert.Equal(t, "https://flag.example/v1", cfg.BaseURL)
		assert.Equal(t, "flag-model", cfg.Model)
		assert.Equal(t, "http://flag-proxy", cfg.Proxy)
		assert.Equal(t, 3, cfg.BatchSize)
		assert.Equal(t, 2, cfg.SelectionLimit)
		assert.Equal(t, "flag-reports", cfg.ReportDir)

		// No flag exists for these, so file values always apply.
		assert.Equal(t, 1200*time.Millisecond, cfg.RequestInterval)
		assert.Equal(t, 4, cfg.MaxConcurrent)
		assert.Equal(t, 7, cfg.HistoryLimit)
	})

	t.Run("provider falls back to deepseek before the block lookup", func(t *testing.T) {
		s := &Settings{
			AI: AISettings{
				Providers: map[string]ProviderSettings{
					"deepseek": {Model: "deepseek-chat"},
				},
			},
		}
		var cfg AuditConfiguration
		cfg.ApplySettings(s)
		assert.Equal(t, "deepseek", cfg.Provider)
		assert.Equal(t, "deepseek-chat", cfg.Model)
	})

	t.Run("nil settings is a no-op", func(t *testing.T) {
		cfg := AuditConfiguration{Provider: "openai", Model: "gpt-4o"}
		want := cfg
		cfg.ApplySettings(nil)
		assert.Equal(t, want, cfg)
	})
}

func TestApplyDefaults(t *testing.T) {
	t.Run("zero configuration gets every default", func(t *testing.T) {
		var cfg AuditConfiguration
		cfg.ApplyDefaults()
		assert.Equal(t, DefaultAuditConfiguration(), cfg)
	})

	t.Run("negative values count as unset", func(t *testing.T) {
		cfg := AuditConfiguration{
			Timeout:       -time.Second,
			MaxConcurrent: -3,
			BatchSize:     -1,
		}
		cfg.ApplyDefaults()
		assert.Equal(t, 120*time.Second, cfg.Timeout)
		assert.Equal(t, 2, cfg.MaxConcurrent)
		assert.Equal(t, 5, cfg.BatchSize)
	})

	t.Run("set values survive", func(t *testing.T) {
		cfg := AuditConfiguration{
			Provider:  "openai",
			Timeout:   30 * time.Second,
			Chain:     "bsc",
			ReportDir: "artifacts",
		}
		cfg.ApplyDefaults()
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, "bsc", cfg.Chain)
		assert.Equal(t, "artifacts", cfg.ReportDir)
	})
}

// TestMergePrecedence walks the exact layering the CLI performs: flags pin
// fields first, then environment, then settings.yaml, then built-in defaults.
func TestMergePrecedence(t *testing.T) {
	t.Setenv("VERIDIAN_API_KEY", "env-key")
	t.Setenv("VERIDIAN_PROXY", "")
	t.Setenv("VERIDIAN_BASE_URL", "")

	s := &Settings{
		AI: AISettings{
			Default: "openai",
			Providers: map[string]ProviderSettings{
				"openai": {
					APIKey:  "sk-file",
					BaseURL: "https://api.openai.com/v1",
					Model:   "gpt-4o",
					Proxy:   "http://file-proxy",
				},
			},
		},
		Audit: AuditSettings{BatchSize: 9},
	}

	cfg := AuditConfiguration{Model: "flag-model"}
	cfg.ApplyEnv()
	cfg.ApplySettings(s)
	cfg.ApplyDefaults()

	assert.Equal(t, "flag-model", cfg.Model, "flag beats file")
	assert.Equal(t, []string{"env-key"}, cfg.APIKeys, "environment beats file")
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL, "file fills what nothing pinned")
	assert.Equal(t, "http://file-proxy", cfg.Proxy)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 9, cfg.BatchSize)
	assert.Equal(t, 120*time.Second, cfg.Timeout, "defaults fill the rest")
	assert.Equal(t, "eth", cfg.Chain)
	assert.Equal(t, 8, cfg.SelectionLimit)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	first, err := Load()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second, "settings load once per process")
}
