package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"veridian/internal/contract"
	"veridian/internal/logger"
)

// vendorDirs hold build output or third-party code, never the protocol
// under audit.
var vendorDirs = map[string]bool{
	"node_modules": true,
	"artifacts":    true,
	"cache":        true,
	"out":          true,
	"broadcast":    true,
	"typechain":    true,
	"coverage":     true,
}

// vendorPathPatterns mark well-known dependency layouts. Test and mock files
// stay in: selection scoring deprioritizes them instead of dropping them.
var vendorPathPatterns = []string{
	"@openzeppelin",
	"node_modules",
	"lib/openzeppelin",
	"lib/solmate",
	"lib/solady",
	"lib/forge-std",
}

func isVendoredPath(rel string) bool {
	lower := strings.ToLower(filepath.ToSlash(rel))
	for _, pattern := range vendorPathPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// LoadDirectory walks root and parses every Solidity file that is not
// vendored library code. Paths in the result are relative to root, and the
// result order is deterministic.
func LoadDirectory(root string) ([]contract.Contract, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var contracts []contract.Contract
	skipped := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if vendorDirs[strings.ToLower(d.Name())] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".sol") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if isVendoredPath(rel) {
			skipped++
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			logger.Warn("Skipping unreadable file %s: %v", rel, readErr)
			return nil
		}
		contracts = append(contracts, contract.ParseSource(rel, string(data)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if skipped > 0 {
		logger.InfoFileOnly("Skipped %d vendored library files under %s", skipped, root)
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].FilePath < contracts[j].FilePath })
	return contracts, nil
}

// LoadFile parses a single Solidity file.
func LoadFile(path string) ([]contract.Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return []contract.Contract{contract.ParseSource(filepath.ToSlash(filepath.Base(path)), string(data))}, nil
}
