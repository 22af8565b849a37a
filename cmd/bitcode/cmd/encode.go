package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/bitcode/pkg/frame"
	"github.com/rawbytedev/bitcode/pkg/schema"
)

func newEncodeCmd(a *app) *cobra.Command {
	var (
		schemaPath string
		out        string
		compress   bool
		raw        bool
	)
	cmd := &cobra.Command{
		Use:   "encode <value.yaml|->",
		Short: "Encode a YAML value",
		Long: `Encode a YAML value with a layout descriptor. The result is framed
unless --raw is given, in which case only the payload bytes are written and
the bit length is logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if raw && compress {
				return fmt.Errorf("--zstd needs a frame; drop --raw")
			}
			d, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			src, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var v any
			if err := yaml.Unmarshal(src, &v); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			b, err := schema.Marshal(a.codec, d, v)
			if err != nil {
				return err
			}
			a.log.Debug("encoded", "bits", b.Bits, "bytes", len(b.Bytes))
			if raw {
				a.log.Info("raw payload", "bits", b.Bits)
				return writeOutput(cmd, out, b.Bytes)
			}
			var flags frame.Flags
			if compress {
				flags |= frame.FlagZstd
			}
			data, err := frame.Encode(b, flags)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Layout descriptor (YAML)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&compress, "zstd", false, "Compress the framed payload")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write the bare payload without a frame")
	return cmd
}
