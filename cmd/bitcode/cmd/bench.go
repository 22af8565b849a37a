package cmd

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/bitcode/pkg/schema"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		schemaPath string
		rounds     int
		cpuProfile string
		memProfile string
	)
	cmd := &cobra.Command{
		Use:   "bench <value.yaml|->",
		Short: "Time repeated encode and decode of one value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rounds < 1 {
				return fmt.Errorf("--rounds must be positive")
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

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := pprof.StartCPUProfile(f); err != nil {
					return err
				}
				defer pprof.StopCPUProfile()
			}
			if memProfile != "" {
				prev := runtime.MemProfileRate
				runtime.MemProfileRate = 1
				defer func() { runtime.MemProfileRate = prev }()
			}

			var bits int
			start := time.Now()
			for i := 0; i < rounds; i++ {
				b, err := schema.Marshal(a.codec, d, v)
				if err != nil {
					return err
				}
				if _, err := schema.Unmarshal(a.codec, d, b); err != nil {
					return err
				}
				bits = b.Bits
			}
			elapsed := time.Since(start)

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				defer f.Close()
				runtime.GC()
				if err := pprof.WriteHeapProfile(f); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rounds=%d bits=%d per-round=%s total=%s\n",
				rounds, bits, elapsed/time.Duration(rounds), elapsed)
			a.log.Debug("bench done", "fast_path", a.codec.FastPath())
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Layout descriptor (YAML)")
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 10000, "Encode/decode round trips")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&memProfile, "memprofile", "", "Write a heap profile to this file")
	return cmd
}
