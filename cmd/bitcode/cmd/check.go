package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rawbytedev/bitcode/pkg/schema"
)

func newCheckCmd(a *app) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a layout descriptor and print its sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			d.Walk(func(path string, n *schema.Descriptor) {
				line := fmt.Sprintf("%-24s %-8s min=%d", path, n.Kind, n.MinBits())
				if n.Kind == schema.Enum {
					line += fmt.Sprintf(" tag=%d", n.TagBits())
				}
				fmt.Fprintln(w, line)
			})
			a.log.Debug("schema ok", "path", schemaPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Layout descriptor (YAML)")
	return cmd
}
