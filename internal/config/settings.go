package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ProviderSettings struct {
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	Proxy   string   `yaml:"proxy"`
}

// Keys merges the single-key and multi-key forms, trimmed and deduplicated,
// preserving order.
func (p ProviderSettings) Keys() []string {
	seen := make(map[string]struct{}, len(p.APIKeys)+1)
	keys := make([]string, 0, len(p.APIKeys)+1)
	for _, k := range append([]string{p.APIKey}, p.APIKeys...) {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

type AISettings struct {
	Default           string                      `yaml:"default"`
	RequestIntervalMS int                         `yaml:"request_interval_ms"`
	MaxConcurrent     int                         `yaml:"max_concurrent"`
	Proxy             string                      `yaml:"proxy"`
	Providers         map[string]ProviderSettings `yaml:"providers"`
}

type ExplorerSettings struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`
}

func (e ExplorerSettings) Keys() []string {
	return ProviderSettings{APIKey: e.APIKey, APIKeys: e.APIKeys}.Keys()
}

type ChainSettings struct {
	ChainID  int              `yaml:"chain_id"`
	RPCURLs  []string         `yaml:"rpc_urls"`
	Explorer ExplorerSettings `yaml:"explorer"`
}

type AuditSettings struct {
	BatchSize      int    `yaml:"batch_size"`
	SelectionLimit int    `yaml:"selection_limit"`
	ReportDir      string `yaml:"report_dir"`
	HistoryLimit   int    `yaml:"history_limit"`
}

type DatabaseSettings struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type Settings struct {
	AI       AISettings               `yaml:"ai"`
	Chains   map[string]ChainSettings `yaml:"chains"`
	Audit    AuditSettings            `yaml:"audit"`
	Database DatabaseSettings         `yaml:"database"`
}

var (
	loadOnce       sync.Once
	loadedSettings *Settings
	loadedErr      error
)

// Load reads settings.yaml once per process. A missing file is not an error:
// flags and environment variables can carry a run on their own.
func Load() (*Settings, error) {
	loadOnce.Do(func() {
		configPath := findConfigFile()
		if configPath == "" {
			loadedSettings = &Settings{}
			return
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			loadedErr = fmt.Errorf("failed to read configuration file: %w", err)
			return
		}

		var settings Settings
		if err := yaml.Unmarshal(data, &settings); err != nil {
			loadedErr = fmt.Errorf("failed to parse %s: %w", configPath, err)
			return
		}
		loadedSettings = &settings
	})

	if loadedErr != nil {
		return nil, loadedErr
	}
	return loadedSettings, nil
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"../config/settings.yaml",
	}
	if exe, err := os.Executable(); err == nil {
		possiblePaths = append(possiblePaths, filepath.Join(filepath.Dir(exe), "config", "settings.yaml"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Provider resolves a provider block by name, tolerating common aliases.
func (s *Settings) Provider(name string) ProviderSettings {
	if s == nil || len(s.AI.Providers) == 0 {
		return ProviderSettings{}
	}
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "gpt4", "chatgpt", "gpt-4o":
		key = "openai"
	case "ollama", "local-llm", "local_llm":
		key = "local"
	}
	return s.AI.Providers[key]
}

// Chain resolves a chain block by name.
func (s *Settings) Chain(name string) (ChainSettings, bool) {
	if s == nil || len(s.Chains) == 0 {
		return ChainSettings{}, false
	}
	chain, ok := s.Chains[strings.ToLower(strings.TrimSpace(name))]
	return chain, ok
}
