package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/bitcode"
	"github.com/rawbytedev/bitcode/pkg/frame"
	"github.com/rawbytedev/bitcode/pkg/schema"
)

func newDecodeCmd(a *app) *cobra.Command {
	var (
		schemaPath string
		raw        bool
		bits       int
	)
	cmd := &cobra.Command{
		Use:   "decode <input|->",
		Short: "Decode to YAML",
		Long: `Decode a framed (or, with --raw, bare) bitcode value and print it as
YAML. Frames written back to back are decoded in turn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			var values []any
			switch {
			case raw && bits < 0:
				v, err := schema.UnmarshalBytes(a.codec, d, data)
				if err != nil {
					return err
				}
				values = append(values, v)
			case raw:
				if bits > len(data)*8 {
					return fmt.Errorf("--bits %d exceeds the %d bits in %s", bits, len(data)*8, args[0])
				}
				v, err := schema.Unmarshal(a.codec, d, bitcode.Buffer{Bytes: data[:(bits+7)/8], Bits: bits})
				if err != nil {
					return err
				}
				values = append(values, v)
			default:
				for len(data) > 0 {
					b, info, err := frame.Decode(data)
					if err != nil {
						return err
					}
					a.log.Debug("frame", "bits", info.Bits, "stored", info.Stored, "flags", info.Flags)
					v, err := schema.Unmarshal(a.codec, d, b)
					if err != nil {
						return err
					}
					values = append(values, v)
					data = data[info.Size:]
				}
			}

			var out bytes.Buffer
			enc := yaml.NewEncoder(&out)
			enc.SetIndent(2)
			for _, v := range values {
				if err := enc.Encode(d.Plain(v)); err != nil {
					return err
				}
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return writeOutput(cmd, "", out.Bytes())
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Layout descriptor (YAML)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Input is a bare payload, not a frame")
	cmd.Flags().IntVar(&bits, "bits", -1, "Exact bit length of a raw payload (default: whole input, zero padded)")
	return cmd
}
