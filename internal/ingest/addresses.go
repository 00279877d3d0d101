package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"veridian/internal/logger"
)

// ReadAddressList loads contract addresses from a text or YAML file. Text
// files take one address per line with # and // comments; YAML accepts a bare
// list or a targets:/addresses: key. Invalid addresses are dropped with a
// warning rather than failing the batch.
func ReadAddressList(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	if ext == ".yaml" || ext == ".yml" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var list []string
		if err := yaml.Unmarshal(bs, &list); err == nil && len(list) > 0 {
			return validAddresses(list)
		}

		var wrapper struct {
			Targets   []string `yaml:"targets"`
			Addresses []string `yaml:"addresses"`
		}
		if err := yaml.Unmarshal(bs, &wrapper); err == nil {
			if len(wrapper.Targets) > 0 {
				return validAddresses(wrapper.Targets)
			}
			if len(wrapper.Addresses) > 0 {
				return validAddresses(wrapper.Addresses)
			}
		}
		return nil, fmt.Errorf("no addresses found in %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) > 0 {
			lines = append(lines, strings.TrimSpace(fields[0]))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return validAddresses(lines)
}

func validAddresses(items []string) ([]string, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") {
			continue
		}
		if !common.IsHexAddress(v) {
			logger.Warn("Skipping invalid address: %s", v)
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid addresses")
	}
	return out, nil
}
