package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env isolates config, history, logs and the baseline in temp directories
// and returns the baseline directory.
func env(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("BITMEND_MANIFEST_PATH", filepath.Join(home, "history"))
	t.Setenv("BITMEND_LOGGING_PATH", filepath.Join(home, "bitmend.log"))

	return filepath.Join(home, "baseline")
}

// run executes the CLI with fresh flag values and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	err := Execute(t.Context())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanCorruptFixRoundTrip(t *testing.T) {
	bdir := env(t)
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.txt"), "hello world")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "second file")

	out, err := run(t, "", "scan", root, "-o", "plain", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "new")
	assert.Contains(t, out, a)

	out, err = run(t, "", "scan", root, "-o", "plain", "--baseline", bdir)
	require.NoError(t, err)
	assert.Empty(t, out, "second scan has nothing notable")

	out, err = run(t, "", "corrupt", a, "--yes", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "flipped "+a)

	out, err = run(t, "", "scan", root, "-o", "json", "--baseline", bdir)
	require.NoError(t, err)

	var report struct {
		Counts map[string]int64 `json:"counts"`
		Files  []struct {
			Path    string `json:"path"`
			Outcome string `json:"outcome"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Counts["corrupt"])
	require.Len(t, report.Files, 1)
	assert.Equal(t, a, report.Files[0].Path)

	out, err = run(t, "", "fix", a, "--baseline", bdir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "repaired "+a+": byte "), out)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	out, err = run(t, "", "fix", a, "--baseline", bdir)
	require.NoError(t, err)
	assert.Equal(t, a+": not corrupted\n", out)

	out, err = run(t, "", "history", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "scan")
	assert.Contains(t, out, "corrupt")
	assert.Contains(t, out, "fix")
}

func TestFixUntracked(t *testing.T) {
	bdir := env(t)
	f := writeFile(t, filepath.Join(t.TempDir(), "x.bin"), "data")

	_, err := run(t, "", "fix", f, "--baseline", bdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no baseline")
}

func TestCorruptDeclined(t *testing.T) {
	bdir := env(t)
	f := writeFile(t, filepath.Join(t.TempDir(), "keep.txt"), "untouched")

	out, err := run(t, "n\n", "corrupt", f, "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	data, err := os.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "untouched", string(data))
}

func TestScanUnknownFormat(t *testing.T) {
	bdir := env(t)

	_, err := run(t, "", "scan", t.TempDir(), "-o", "xml", "--baseline", bdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")
}

func TestScanMissingRoot(t *testing.T) {
	bdir := env(t)

	_, err := run(t, "", "scan", filepath.Join(t.TempDir(), "nope"), "--baseline", bdir)
	require.Error(t, err)
}

func TestBaselineCommands(t *testing.T) {
	bdir := env(t)
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	b := writeFile(t, filepath.Join(root, "dir", "b.txt"), "beta")

	_, err := run(t, "", "scan", root, "-o", "plain", "--baseline", bdir)
	require.NoError(t, err)

	out, err := run(t, "", "baseline", "path", "--baseline", bdir)
	require.NoError(t, err)
	assert.Equal(t, bdir+"\n", out)

	out, err = run(t, "", "baseline", "list", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, a)
	assert.Contains(t, out, b)

	out, err = run(t, "", "baseline", "stats", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "Files:        2")

	out, err = run(t, "", "baseline", "show", a, "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "Digest:")

	out, err = run(t, "", "baseline", "forget", "-r", filepath.Join(root, "dir"), "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "Forgot 1 files")

	_, err = run(t, "", "baseline", "show", b, "--baseline", bdir)
	assert.Error(t, err)

	out, err = run(t, "", "baseline", "clear", "--yes", "--baseline", bdir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 records")

	out, err = run(t, "", "baseline", "list", "--baseline", bdir)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestVersionSkipsConfig(t *testing.T) {
	env(t)
	bad := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := run(t, "", "version", "--config", bad)
	require.NoError(t, err)
	assert.Contains(t, out, "bitmend dev")

	_, err = run(t, "", "history", "--config", bad)
	assert.Error(t, err, "an explicit config file must exist")
}

func TestConsoleLevel(t *testing.T) {
	t.Cleanup(func() { logLevel, verbose, quiet = "", false, false })

	tests := []struct {
		name     string
		level    string
		verbose  bool
		quiet    bool
		expected string
	}{
		{name: "default", expected: ""},
		{name: "verbose", verbose: true, expected: "debug"},
		{name: "quiet", quiet: true, expected: "error"},
		{name: "explicit wins", level: "info", verbose: true, expected: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel, verbose, quiet = tt.level, tt.verbose, tt.quiet
			assert.Equal(t, tt.expected, consoleLevel())
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	bdir := env(t)

	_, err := run(t, "", "baseline", "path", "--log-level", "loud", "--baseline", bdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
