package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rawbytedev/bitcode/pkg/frame"
)

func newInspectCmd(a *app) *cobra.Command {
	var showBits bool
	cmd := &cobra.Command{
		Use:   "inspect <input|->",
		Short: "Describe the frames in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for i := 0; len(data) > 0; i++ {
				b, info, err := frame.Decode(data)
				if err != nil {
					return fmt.Errorf("frame %d: %w", i, err)
				}
				compression := "none"
				if info.Flags&frame.FlagZstd != 0 {
					compression = "zstd"
				}
				fmt.Fprintf(w, "frame %d: version=%d bits=%d bytes=%d stored=%d compression=%s size=%d\n",
					i, info.Version, info.Bits, len(b.Bytes), info.Stored, compression, info.Size)
				if showBits {
					fmt.Fprintln(w, b.BitString())
				}
				data = data[info.Size:]
			}
			a.log.Debug("inspect done", "input", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showBits, "bits", "b", false, "Print each payload bit by bit")
	return cmd
}
