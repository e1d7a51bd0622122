package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/bitmend/pkg/bitmend/baseline"
	"github.com/jamesainslie/bitmend/pkg/bitmend/corrupt"
	"github.com/jamesainslie/bitmend/pkg/bitmend/manifest"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

var corruptCmd = &cobra.Command{
	Use:   "corrupt <path>",
	Short: "Flip one random bit in a file (for testing)",
	Long: `Corrupt flips one pseudo-randomly chosen bit of a file in place and
restores its access and modification times, reproducing silent bit rot so
that 'bitmend scan' and 'bitmend fix' can be tried end to end.

This destroys data. You are asked to confirm unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrupt,
}

var (
	corruptYes     bool
	corruptMaxSize string
)

func init() {
	corruptCmd.Flags().BoolVarP(&corruptYes, "yes", "y", false, "do not ask for confirmation")
	corruptCmd.Flags().StringVar(&corruptMaxSize, "max-size", "", "largest file to touch (default from config)")

	rootCmd.AddCommand(corruptCmd)
}

func runCorrupt(cmd *cobra.Command, args []string) error {
	maxSize, err := cfg.CorruptMaxSize()
	if corruptMaxSize != "" {
		maxSize, err = types.ParseSize(corruptMaxSize)
	}
	if err != nil {
		return fmt.Errorf("invalid max size: %w", err)
	}

	path, err := baseline.Normalize(args[0])
	if err != nil {
		return err
	}

	in := &corrupt.Injector{MaxSize: maxSize}
	if !corruptYes {
		in.Confirm = func(path string) (bool, error) {
			return confirm("Flip a random bit in %s?", path)
		}
	}

	inj, err := in.Inject(path)
	if errors.Is(err, corrupt.ErrDeclined) {
		printInfo("Aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout(), "flipped %s: byte %d bit %d (0x%02x -> 0x%02x)\n",
		inj.Path, inj.Offset, inj.Bit, inj.Before, inj.After)

	recordRun(func(m *manifest.Manifest) (*manifest.Entry, error) {
		return m.Log(manifest.OpCorrupt, inj.Path, []manifest.FileRecord{{
			Path:   inj.Path,
			Status: "flipped",
			Detail: fmt.Sprintf("byte %d bit %d", inj.Offset, inj.Bit),
		}}, manifest.Summary{})
	})

	return nil
}
