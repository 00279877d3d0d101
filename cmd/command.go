package cmd

import (
	"context"
	"fmt"

	"veridian/internal/config"
	"veridian/internal/store"
	"veridian/internal/ui"
)

func Execute(ctx context.Context, cli *CLIConfig) error {
	settings, err := config.Load()
	if err != nil {
		fmt.Printf(ui.Yellow+"⚠️  Warning: failed to load config: %v"+ui.Reset+"\n", err)
		settings = &config.Settings{}
	}

	cli.ApplyEnv()
	cli.ApplySettings(settings)
	cli.ApplyDefaults()

	if cli.ListRuns > 0 {
		return ExecuteHistory(ctx, cli, settings)
	}
	return ExecuteAudit(ctx, cli, settings)
}

func storeConfig(settings *config.Settings) store.Config {
	return store.Config{
		Driver: settings.Database.Driver,
		Path:   settings.Database.Path,
		DSN:    settings.Database.DSN,
	}
}

func ExecuteHistory(ctx context.Context, cli *CLIConfig, settings *config.Settings) error {
	st, err := store.Open(storeConfig(settings))
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer st.Close()

	runs, err := st.RecentRuns(ctx, cli.ListRuns)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println(ui.Gray + "No recorded audit runs yet." + ui.Reset)
		return nil
	}

	fmt.Println(ui.Cyan + "RECENT AUDIT RUNS:" + ui.Reset)
	for _, run := range runs {
		fmt.Printf("  %s#%-4d%s %-24s %-10s %3d contracts %3d findings  %s/%ds  %s\n",
			ui.Bold, run.ID, ui.Reset,
			run.ProjectName, run.ProtocolType,
			run.ContractCount, run.FindingCount,
			run.Provider, run.DurationSecs,
			ui.Gray+run.CreatedAt.Format("2006-01-02 15:04")+ui.Reset)
	}
	return nil
}
