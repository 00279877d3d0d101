package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"veridian/cmd"
	"veridian/internal/ui"
)

//go:embed config/settings.example.yaml
//go:embed strategy/prompts/*.tmpl
//go:embed strategy/knowledge/*.md
var embeddedFiles embed.FS

func main() {
	// Materialize default resources (config and strategy files) so the
	// binary is self-contained on first run.
	if err := initResources(); err != nil {
		cmd.PrintFatal(err)
	}

	ui.PrintBanner()
	if err := cmd.Run(); err != nil {
		cmd.PrintFatal(err)
	}
}

func initResources() error {
	if err := initConfigFile(); err != nil {
		return fmt.Errorf("failed to init config file: %w", err)
	}
	if err := initStrategyFiles(); err != nil {
		return fmt.Errorf("failed to init strategy files: %w", err)
	}
	return nil
}

func initConfigFile() error {
	targetDir := "config"
	targetFile := filepath.Join(targetDir, "settings.yaml")

	if _, err := os.Stat(targetFile); err == nil {
		return nil // already present, keep the user's copy
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}

	data, err := embeddedFiles.ReadFile("config/settings.example.yaml")
	if err != nil {
		return err
	}

	if err := os.WriteFile(targetFile, data, 0644); err != nil {
		return err
	}

	fmt.Printf(ui.Green+"✅ Created default config file: %s"+ui.Reset+"\n", targetFile)
	return nil
}

func initStrategyFiles() error {
	return fs.WalkDir(embeddedFiles, "strategy", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		// Restore only files the user has not created or edited.
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil
		}

		data, err := embeddedFiles.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		fmt.Printf(ui.Green+"✅ Restored strategy file: %s"+ui.Reset+"\n", path)
		return nil
	})
}
