package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/config"
	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/manifest"
)

// skipSetup marks commands that must work without a readable config.
const skipSetup = "bitmend/skip-setup"

var (
	cfgFile     string
	baselineDir string
	logLevel    string
	verbose     bool
	quiet       bool

	// cfg is loaded by setup before any command runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "bitmend",
		Short: "Detect bit rot and repair single-bit flips",
		Long: `Bitmend keeps a baseline of content digests for a directory tree and
compares every later scan against it. A file whose content changed while its
modification time did not is reported as corrupt. If exactly one bit flipped,
'bitmend fix' finds it and flips it back.

Examples:
  bitmend scan ~/Photos          # Record or verify a tree
  bitmend scan --fatal -o json . # Stop at the first error, JSON report
  bitmend fix ~/Photos/a.jpg     # Repair a single-bit flip
  bitmend baseline stats         # Inspect the baseline database
  bitmend history                # Past runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (setup -> printVerbose -> stderr -> rootCmd).
	rootCmd.PersistentPreRunE = setup

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/bitmend/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baselineDir, "baseline", "", "baseline database directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "console log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	_ = logging.Close()
	return err
}

// setup loads configuration and starts logging.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipSetup] != "" {
		return nil
	}

	if logLevel != "" {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if baselineDir != "" {
		if loaded.Baseline.Path, err = config.ExpandPath(baselineDir); err != nil {
			return err
		}
	}
	// The scanner compares skip dirs against absolute paths.
	if loaded.Baseline.Path, err = filepath.Abs(loaded.Baseline.Path); err != nil {
		return fmt.Errorf("failed to resolve baseline path: %w", err)
	}
	cfg = loaded

	logCfg, err := cfg.LogConfig(consoleLevel())
	if err != nil {
		return err
	}
	if err := logging.Init(logCfg); err != nil {
		// A broken log file must not prevent a scan.
		printVerbose("logging disabled: %v", err)
	}

	return nil
}

// consoleLevel resolves the stderr log level from the flags.
func consoleLevel() string {
	switch {
	case logLevel != "":
		return logLevel
	case verbose:
		return "debug"
	case quiet:
		return "error"
	default:
		return ""
	}
}

// recordRun appends to the run history when it is enabled. History is best
// effort: failures are logged and never fail the command.
func recordRun(fn func(m *manifest.Manifest) (*manifest.Entry, error)) {
	if cfg == nil || !cfg.Manifest.Enabled {
		return
	}

	log := logging.Get(logging.CLI)

	m, err := manifest.New(cfg.Manifest.Path)
	if err == nil {
		err = m.EnsureDir()
	}
	if err != nil {
		log.Warn("history unavailable", "error", err)
		return
	}

	entry, err := fn(m)
	if err != nil {
		log.Warn("failed to record history", "error", err)
		return
	}
	printVerbose("recorded history entry %s", entry.ID)
}

// confirm asks a y/N question on stdin. Anything but y or yes declines.
func confirm(format string, args ...interface{}) (bool, error) {
	fmt.Fprintf(stderr(), format+" [y/N] ", args...)

	line, err := bufio.NewReader(rootCmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func stdout() io.Writer {
	return rootCmd.OutOrStdout()
}

func stderr() io.Writer {
	return rootCmd.ErrOrStderr()
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(stderr(), "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(stdout(), format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
