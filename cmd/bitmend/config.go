package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage bitmend configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/bitmend/config.yaml (if set)
  2. ~/.config/bitmend/config.yaml

Environment variables can override config file settings using the BITMEND_ prefix:
  BITMEND_BASELINE_PATH=/srv/bitmend
  BITMEND_FIX_MAX_SIZE=4MiB
  BITMEND_WORKERS_SCAN=8`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after defaults, file and environment are merged.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by $VISUAL, then $EDITOR, then vi. A default file
is created first if none exists.`,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create default configuration file",
	Long:        `Create a default configuration file if one doesn't exist.`,
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show configuration file path",
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := stdout()

	if cfg.File != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.File)
	} else {
		fmt.Fprint(out, "Config file: (using defaults, no file found)\n\n")
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "default_path:             %s\n", cfg.DefaultPath)
	fmt.Fprintf(out, "baseline.path:            %s\n", cfg.Baseline.Path)
	fmt.Fprintf(out, "exclude:                  %v\n", cfg.Exclude)
	fmt.Fprintf(out, "ignore_file:              %s\n", cfg.IgnoreFile)
	fmt.Fprintf(out, "workers.scan:             %d\n", cfg.Workers.Scan)
	fmt.Fprintf(out, "workers.fix:              %d\n", cfg.Workers.Fix)
	fmt.Fprintf(out, "fix.max_size:             %s\n", cfg.Fix.MaxSize)
	fmt.Fprintf(out, "corrupt.max_size:         %s\n", cfg.Corrupt.MaxSize)
	fmt.Fprintf(out, "manifest.enabled:         %t\n", cfg.Manifest.Enabled)
	fmt.Fprintf(out, "manifest.path:            %s\n", cfg.Manifest.Path)
	fmt.Fprintf(out, "manifest.retention_days:  %d\n", cfg.Manifest.RetentionDays)
	fmt.Fprintf(out, "logging.level:            %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "logging.console:          %s\n", cfg.Logging.Console)
	fmt.Fprintf(out, "logging.path:             %s\n", cfg.Logging.Path)

	components := make([]string, 0, len(cfg.Logging.Components))
	for name := range cfg.Logging.Components {
		components = append(components, name)
	}
	sort.Strings(components)
	for _, name := range components {
		fmt.Fprintf(out, "logging.components.%-6s %s\n", name+":", cfg.Logging.Components[name])
	}

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	envVars := []string{
		"BITMEND_DEFAULT_PATH",
		"BITMEND_BASELINE_PATH",
		"BITMEND_EXCLUDE",
		"BITMEND_IGNORE_FILE",
		"BITMEND_WORKERS_SCAN",
		"BITMEND_WORKERS_FIX",
		"BITMEND_FIX_MAX_SIZE",
		"BITMEND_CORRUPT_MAX_SIZE",
		"BITMEND_MANIFEST_ENABLED",
		"BITMEND_MANIFEST_PATH",
		"BITMEND_MANIFEST_RETENTION_DAYS",
		"BITMEND_LOGGING_LEVEL",
		"BITMEND_LOGGING_CONSOLE",
		"BITMEND_LOGGING_PATH",
	}

	anyOverrides := false
	for _, name := range envVars {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(out, "%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Fprintln(out, "(none)")
	}

	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'bitmend config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}

func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}
