package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"veridian/internal/ai"
	"veridian/internal/audit"
	"veridian/internal/config"
	"veridian/internal/contract"
	"veridian/internal/ingest"
	"veridian/internal/knowledge"
	"veridian/internal/logger"
	"veridian/internal/report"
	"veridian/internal/store"
	"veridian/internal/ui"
)

// fetchWorkers bounds concurrent explorer fetches for address-list targets.
const fetchWorkers = 4

// defaultChains cover the common explorers out of the box; settings.yaml can
// extend or override them.
var defaultChains = map[string]ingest.ChainConfig{
	"eth":  {Name: "eth", ChainID: 1, ExplorerURL: "https://api.etherscan.io"},
	"bsc":  {Name: "bsc", ChainID: 56, ExplorerURL: "https://api.bscscan.com"},
	"base": {Name: "base", ChainID: 8453, ExplorerURL: "https://api.basescan.org"},
}

type auditTarget struct {
	project   contract.Project
	contracts []contract.Contract
}

func ExecuteAudit(ctx context.Context, cli *CLIConfig, settings *config.Settings) error {
	if err := logger.Init(); err != nil {
		fmt.Printf(ui.Yellow+"⚠️  Warning: failed to init logger: %v"+ui.Reset+"\n", err)
	}
	defer logger.Close()
	logger.SetVerbose(cli.Verbose)

	manager, err := ai.NewManager(ai.ManagerConfig{
		Provider:        cli.Provider,
		APIKeys:         cli.APIKeys,
		BaseURL:         cli.BaseURL,
		Model:           cli.Model,
		Timeout:         cli.Timeout,
		Proxy:           cli.Proxy,
		RequestInterval: cli.RequestInterval,
		MaxConcurrent:   cli.MaxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("failed to create AI manager: %w", err)
	}
	defer manager.Close()

	var history *store.Store
	if cli.EnableHistory {
		history, err = store.Open(storeConfig(settings))
		if err != nil {
			logger.Warn("History database unavailable: %v", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	pipeline := audit.NewPipeline(manager, knowledge.NewLoader(knowledge.DefaultDir), audit.Config{
		BatchSize:      cli.BatchSize,
		SelectionLimit: cli.SelectionLimit,
		HistoryLimit:   cli.HistoryLimit,
	})
	if history != nil {
		pipeline = pipeline.WithHistory(history)
	}

	targets, err := resolveTargets(ctx, cli, settings)
	if err != nil {
		return err
	}

	reporter := report.NewReporter(report.NewFileStorage(cli.ReportDir))

	var firstErr error
	for i, tgt := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(targets) > 1 {
			logger.Info("📦 Target %d/%d: %s", i+1, len(targets), tgt.project.Name)
		}

		res, runErr := pipeline.Run(ctx, tgt.project, tgt.contracts)
		if res == nil {
			logger.Error("Audit of %s failed: %v", tgt.project.Name, runErr)
			if firstErr == nil {
				firstErr = runErr
			}
			if errors.Is(runErr, context.Canceled) {
				return firstErr
			}
			continue
		}

		finalize(ctx, cli, manager, reporter, history, res, runErr != nil)

		if runErr != nil {
			// canceled mid-run: the partial report is out, stop here
			if firstErr == nil {
				firstErr = runErr
			}
			return firstErr
		}
	}
	return firstErr
}

// finalize writes the report, persists the run, and prints the closing stats.
// Runs for complete and interrupted audits alike so nothing is lost.
func finalize(ctx context.Context, cli *CLIConfig, manager *ai.Manager, reporter *report.Reporter, history *store.Store, res *audit.Result, partial bool) {
	calls, failures := manager.Stats()
	meta := report.Meta{
		Provider: manager.Name(),
		Model:    cli.Model,
		Calls:    calls,
		Failures: failures,
		Partial:  partial,
	}

	if path, err := reporter.GenerateAndSave(res, meta); err != nil {
		logger.Error("Failed to write report: %v", err)
	} else if partial {
		logger.Info("📝 Partial report saved: %s", path)
	} else {
		ui.LogSuccess("Report saved: %s", path)
	}

	if history != nil {
		saveCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		run := &store.AuditRun{
			ProjectName:   res.Project.Name,
			ProtocolType:  res.Understanding.ProtocolType,
			Provider:      meta.Provider,
			ContractCount: res.ContractCount,
			FindingCount:  len(res.Findings),
			DurationSecs:  int64(res.Duration.Seconds()),
		}
		if err := history.SaveRun(saveCtx, run, res.Findings); err != nil {
			logger.Warn("Failed to persist run: %v", err)
		}
	}

	ui.PrintStats(res.ContractCount, calls, len(res.Findings), res.Duration)
}

func resolveTargets(ctx context.Context, cli *CLIConfig, settings *config.Settings) ([]auditTarget, error) {
	switch cli.TargetKind {
	case TargetDirectory:
		contracts, err := ingest.LoadDirectory(cli.Target)
		if err != nil {
			return nil, err
		}
		if len(contracts) == 0 {
			return nil, fmt.Errorf("no Solidity files found under %s", cli.Target)
		}
		name := cli.ProjectName
		if name == "" {
			name = filepath.Base(cli.Target)
		}
		return []auditTarget{{
			project:   contract.Project{Name: name, ProtocolType: cli.ProtocolHint},
			contracts: contracts,
		}}, nil

	case TargetSolidityFile:
		contracts, err := ingest.LoadFile(cli.Target)
		if err != nil {
			return nil, err
		}
		name := cli.ProjectName
		if name == "" {
			base := filepath.Base(cli.Target)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		return []auditTarget{{
			project:   contract.Project{Name: name, ProtocolType: cli.ProtocolHint},
			contracts: contracts,
		}}, nil

	case TargetAddress:
		fetcher, err := newFetcher(cli, settings)
		if err != nil {
			return nil, err
		}
		defer fetcher.Close()

		project, contracts, err := fetcher.FetchProject(ctx, cli.Target)
		if err != nil {
			return nil, err
		}
		if cli.ProjectName != "" {
			project.Name = cli.ProjectName
		}
		if cli.ProtocolHint != "" {
			project.ProtocolType = cli.ProtocolHint
		}
		return []auditTarget{{project: project, contracts: contracts}}, nil

	case TargetAddressList:
		addrs, err := ingest.ReadAddressList(cli.Target)
		if err != nil {
			return nil, err
		}
		fetcher, err := newFetcher(cli, settings)
		if err != nil {
			return nil, err
		}
		defer fetcher.Close()

		logger.Info("📋 Loaded %d target addresses", len(addrs))

		// Fetch with bounded concurrency; results keep list order. A failed
		// address is skipped, not fatal.
		results := make([]*auditTarget, len(addrs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchWorkers)
		for i, addr := range addrs {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				project, contracts, fetchErr := fetcher.FetchProject(gctx, addr)
				if fetchErr != nil {
					logger.Warn("Skipping %s: %v", addr, fetchErr)
					return nil
				}
				if cli.ProtocolHint != "" {
					project.ProtocolType = cli.ProtocolHint
				}
				results[i] = &auditTarget{project: project, contracts: contracts}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		targets := make([]auditTarget, 0, len(addrs))
		for _, tgt := range results {
			if tgt != nil {
				targets = append(targets, *tgt)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("none of the %d addresses produced auditable source", len(addrs))
		}
		return targets, nil
	}

	return nil, fmt.Errorf("unknown target kind")
}

func newFetcher(cli *CLIConfig, settings *config.Settings) (*ingest.Fetcher, error) {
	chainCfg, ok := defaultChains[cli.Chain]
	if !ok {
		chainCfg = ingest.ChainConfig{Name: cli.Chain}
	}
	if cs, found := settings.Chain(cli.Chain); found {
		if cs.ChainID > 0 {
			chainCfg.ChainID = cs.ChainID
		}
		if len(cs.RPCURLs) > 0 {
			chainCfg.RPCURLs = cs.RPCURLs
		}
		if cs.Explorer.BaseURL != "" {
			chainCfg.ExplorerURL = cs.Explorer.BaseURL
		}
		if keys := cs.Explorer.Keys(); len(keys) > 0 {
			chainCfg.APIKeys = keys
		}
	}
	chainCfg.Proxy = cli.Proxy
	return ingest.NewFetcher(chainCfg)
}
