package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/pkg/schema"
)

type app struct {
	verbose  bool
	strict   bool
	portable bool

	log   *slog.Logger
	codec *bitcode.Codec
}

// NewRootCmd builds the command tree with fresh flag state.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bitcode",
		Short: "Encode and decode compact bit-level data",
		Long: `bitcode converts YAML values to the bitcode wire format and back,
using a YAML layout descriptor in place of Go types.

Example:
  bitcode encode -s reading.yaml -o reading.bf value.yaml
  bitcode decode -s reading.yaml reading.bf`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			a.codec = bitcode.NewCodec(bitcode.Options{
				FastPath: true,
				Portable: a.portable,
				Strict:   a.strict,
				Logger:   a.log,
			})
			a.log.Debug("codec ready", "fast_path", a.codec.FastPath(), "strict", a.strict)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug details to stderr")
	root.PersistentFlags().BoolVar(&a.strict, "strict", false, "Reject trailing data after a decoded value")
	root.PersistentFlags().BoolVar(&a.portable, "portable", false, "Use the portable bit containers")

	root.AddCommand(newEncodeCmd(a), newDecodeCmd(a), newInspectCmd(a), newCheckCmd(a), newBenchCmd(a))
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadSchema(path string) (*schema.Descriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("a schema is required (--schema)")
	}
	return schema.Load(path)
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// writeOutput writes to a file, or stdout for "" and "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
