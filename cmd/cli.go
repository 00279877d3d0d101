package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"veridian/internal/config"
	"veridian/internal/ui"
)

// TargetKind tells the executor how to ingest the target the user passed.
type TargetKind int

const (
	TargetDirectory TargetKind = iota
	TargetSolidityFile
	TargetAddress
	TargetAddressList
)

type CLIConfig struct {
	config.AuditConfiguration
	TargetKind  TargetKind
	ProjectName string
	ListRuns    int
}

func detectTargetKind(target string) (TargetKind, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return 0, errors.New("-t is required: a contracts directory, a .sol file, a 0x address, or an address list (.txt/.yaml)")
	}
	if common.IsHexAddress(t) {
		return TargetAddress, nil
	}
	lower := strings.ToLower(t)
	if strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return TargetAddressList, nil
	}

	info, err := os.Stat(t)
	if err != nil {
		if strings.HasSuffix(lower, ".sol") {
			return 0, fmt.Errorf("target %s: %w", t, err)
		}
		return 0, fmt.Errorf("target %s is not an address, and no such file or directory exists", t)
	}
	if info.IsDir() {
		return TargetDirectory, nil
	}
	if strings.HasSuffix(lower, ".sol") {
		return TargetSolidityFile, nil
	}
	return 0, fmt.Errorf("target file %s has an unsupported extension (want .sol, .txt, .yaml)", t)
}

func showHelp(topic string) {
	switch topic {
	case "ai":
		showAIHelp()
	case "t", "target":
		showTargetHelp()
	case "c", "chain":
		showChainHelp()
	case "history":
		showHistoryHelp()
	default:
		showGeneralHelp()
	}
}

func showGeneralHelp() {
	fmt.Println(ui.Cyan + "USAGE:" + ui.Reset)
	fmt.Println("  veridian -t <target> [OPTIONS]")
	fmt.Println()

	fmt.Println(ui.Cyan + "CORE OPTIONS:" + ui.Reset)
	fmt.Printf("  %-25s %s\n", "-t <target>", "Audit target (auto-detect: dir | file.sol | 0x address | list.txt)")
	fmt.Printf("  %-25s %s\n", "-ai <provider>", "AI provider: deepseek | openai | local")
	fmt.Printf("  %-25s %s\n", "-c <chain>", "Chain for address targets: eth | bsc | base")
	fmt.Printf("  %-25s %s\n", "-name <name>", "Project name (default: derived from target)")
	fmt.Printf("  %-25s %s\n", "-protocol <type>", "Protocol hint: LENDING | DEX | VAULT | STAKING")
	fmt.Printf("  %-25s %s\n", "-r <dir>", "Report output directory (default: reports)")
	fmt.Println()

	fmt.Println(ui.Cyan + "TUNING:" + ui.Reset)
	fmt.Printf("  %-25s %s\n", "-model <name>", "Model override for the chosen provider")
	fmt.Printf("  %-25s %s\n", "-base-url <url>", "API base URL override")
	fmt.Printf("  %-25s %s\n", "-timeout <dur>", "Per-request AI timeout (default 2m)")
	fmt.Printf("  %-25s %s\n", "-batch <n>", "Functions per deep-logic batch (default 5)")
	fmt.Printf("  %-25s %s\n", "-limit <n>", "Contracts selected for deep analysis (default 8)")
	fmt.Printf("  %-25s %s\n", "-proxy <url>", "HTTP/SOCKS5 proxy for AI and explorer traffic")
	fmt.Printf("  %-25s %s\n", "-no-history", "Skip the local findings database")
	fmt.Printf("  %-25s %s\n", "-history <n>", "List the N most recent runs and exit")
	fmt.Printf("  %-25s %s\n", "-v", "Verbose output")
	fmt.Println()

	fmt.Println(ui.Cyan + "HELP:" + ui.Reset)
	fmt.Println("  veridian <option> --help   Show detailed help for an option")
	fmt.Println()

	fmt.Println(ui.Cyan + "EXAMPLES:" + ui.Reset)
	fmt.Println(ui.Gray + "  # Audit a local Foundry/Hardhat project" + ui.Reset)
	fmt.Println("  veridian -t ./contracts -ai deepseek")
	fmt.Println()
	fmt.Println(ui.Gray + "  # Audit a deployed contract by address" + ui.Reset)
	fmt.Println("  veridian -t 0x1f98431c8ad98523631ae4a59f267346ea31f984 -c eth")
	fmt.Println()
	fmt.Println(ui.Gray + "  # Audit a batch of deployed contracts" + ui.Reset)
	fmt.Println("  veridian -t targets.txt -c bsc -ai openai")
}

func showAIHelp() {
	fmt.Println(ui.Cyan + "🤖 AI PROVIDER (-ai)" + ui.Reset)
	fmt.Println(ui.Gray + "Select the model driving the analysis phases." + ui.Reset)
	fmt.Println()

	fmt.Println(ui.Cyan + "SUPPORTED PROVIDERS:" + ui.Reset)
	fmt.Printf("  %-25s %s\n", "deepseek", "DeepSeek (default, cost-effective)")
	fmt.Printf("  %-25s %s\n", "openai", "OpenAI GPT-4o")
	fmt.Printf("  %-25s %s\n", "local", "Local model via an OpenAI-compatible server")
	fmt.Println()

	fmt.Println(ui.Cyan + "CONFIGURATION:" + ui.Reset)
	fmt.Println("  Set API keys in " + ui.Bold + "config/settings.yaml" + ui.Reset)
	fmt.Println("  Or use VERIDIAN_API_KEY (comma-separated for key rotation)")
}

func showTargetHelp() {
	fmt.Println(ui.Cyan + "🎯 AUDIT TARGETS (-t)" + ui.Reset)
	fmt.Println(ui.Gray + "Specify what to audit. The kind is auto-detected." + ui.Reset)
	fmt.Println()

	fmt.Println(ui.Cyan + "AUTO DETECTION:" + ui.Reset)
	fmt.Println("  -t <dir>             => audit every .sol file under the directory")
	fmt.Println("  -t <file.sol>        => audit a single flattened source file")
	fmt.Println("  -t <0x...>           => fetch verified source from the chain explorer")
	fmt.Println("  -t <list.txt|.yaml>  => audit each address in the list")
	fmt.Println()

	fmt.Println(ui.Cyan + "EXAMPLES:" + ui.Reset)
	fmt.Println("  veridian -t ./src")
	fmt.Println("  veridian -t Vault.sol -protocol VAULT")
	fmt.Println("  veridian -t 0xdac17f958d2ee523a2206206994597c13d831ec7 -c eth")
	fmt.Println("  veridian -t targets.yaml -c base")
}

func showChainHelp() {
	fmt.Println(ui.Cyan + "⛓️  BLOCKCHAIN NETWORK (-c)" + ui.Reset)
	fmt.Println(ui.Gray + "Network used for address targets." + ui.Reset)
	fmt.Println()

	fmt.Println(ui.Cyan + "SUPPORTED NETWORKS:" + ui.Reset)
	fmt.Printf("  %-25s %s\n", "eth", "Ethereum Mainnet (default)")
	fmt.Printf("  %-25s %s\n", "bsc", "BNB Smart Chain")
	fmt.Printf("  %-25s %s\n", "base", "Base")
	fmt.Println()
	fmt.Println("  More chains can be declared under " + ui.Bold + "chains:" + ui.Reset + " in config/settings.yaml")
}

func showHistoryHelp() {
	fmt.Println(ui.Cyan + "🗄️  AUDIT HISTORY (-history / -no-history)" + ui.Reset)
	fmt.Println(ui.Gray + "Runs and findings are stored locally so later audits can cite similar past findings." + ui.Reset)
	fmt.Println()

	fmt.Println(ui.Cyan + "USAGE:" + ui.Reset)
	fmt.Println("  veridian -history 10        List the last 10 runs")
	fmt.Println("  veridian -t ./src -no-history   Audit without touching the database")
	fmt.Println()
	fmt.Println("  Backend is sqlite by default (data/veridian.db); postgres via settings.yaml")
}

// ParseFlags parses the command line into a CLIConfig carrying only what the
// user pinned. Settings, environment, and defaults layer in later.
func ParseFlags() (*CLIConfig, error) {
	if len(os.Args) > 1 {
		for i := 1; i < len(os.Args)-1; i++ {
			if os.Args[i+1] == "--help" || os.Args[i+1] == "-h" {
				topic := strings.TrimLeft(os.Args[i], "-")
				showHelp(topic)
				os.Exit(0)
			}
		}
		for _, arg := range os.Args[1:] {
			if arg == "--help" || arg == "-h" {
				showGeneralHelp()
				os.Exit(0)
			}
		}
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.Usage = func() {
		showGeneralHelp()
	}

	target := fs.String("t", "", "Audit target: directory | file.sol | 0x address | address list")
	provider := fs.String("ai", "", "AI provider: deepseek | openai | local")
	chain := fs.String("c", "", "Chain for address targets: eth | bsc | base")
	name := fs.String("name", "", "Project name override")
	protocol := fs.String("protocol", "", "Protocol type hint: LENDING | DEX | VAULT | STAKING")
	model := fs.String("model", "", "Model override for the chosen provider")
	baseURL := fs.String("base-url", "", "API base URL override")
	timeout := fs.Duration("timeout", 0, "Per-request AI timeout")
	batch := fs.Int("batch", 0, "Functions per deep-logic batch")
	limit := fs.Int("limit", 0, "Max contracts selected for deep analysis")
	reportDir := fs.String("r", "", "Report output directory")
	proxy := fs.String("proxy", "", "HTTP/SOCKS5 proxy for AI and explorer traffic")
	verbose := fs.Bool("v", false, "Verbose output")
	noHistory := fs.Bool("no-history", false, "Disable the local findings database")
	listRuns := fs.Int("history", 0, "List the N most recent audit runs and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	cfg := &CLIConfig{
		AuditConfiguration: config.AuditConfiguration{
			Provider:       strings.TrimSpace(*provider),
			BaseURL:        strings.TrimSpace(*baseURL),
			Model:          strings.TrimSpace(*model),
			Timeout:        *timeout,
			Proxy:          strings.TrimSpace(*proxy),
			Target:         strings.TrimSpace(*target),
			Chain:          strings.ToLower(strings.TrimSpace(*chain)),
			ProtocolHint:   strings.ToUpper(strings.TrimSpace(*protocol)),
			BatchSize:      *batch,
			SelectionLimit: *limit,
			ReportDir:      strings.TrimSpace(*reportDir),
			EnableHistory:  !*noHistory,
			Verbose:        *verbose,
		},
		ProjectName: strings.TrimSpace(*name),
		ListRuns:    *listRuns,
	}

	if cfg.ListRuns > 0 {
		return cfg, nil
	}

	kind, err := detectTargetKind(cfg.Target)
	if err != nil {
		return nil, err
	}
	cfg.TargetKind = kind

	if cfg.Target != "" && kind != TargetAddress && !filepath.IsAbs(cfg.Target) {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			cfg.Target = filepath.Join(cwd, cfg.Target)
		}
	}

	return cfg, nil
}

func Run() error {
	cfg, err := ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()

	go func() {
		count := 0
		for range sigChan {
			count++
			if count == 1 {
				fmt.Fprintln(os.Stderr, "\nInterrupt received, finishing up... (press Ctrl+C again to force exit)")
				cancel()
				continue
			}
			fmt.Fprintln(os.Stderr, "\nForce exiting...")
			os.Exit(130)
		}
	}()

	start := time.Now()
	err = Execute(ctx, cfg)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Stopped after %s\n", time.Since(start).Round(time.Second))
	}
	return err
}

func PrintFatal(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
