package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (c *CLI) newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <crate> [version]",
		Short: "Print the records for a crate, one JSON object per line",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 2 {
				rec, err := idx.Version(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				line, err := rec.MarshalLine()
				if err != nil {
					return err
				}
				fmt.Println(string(line))
				return nil
			}

			records, err := idx.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, rec := range records {
				line, err := rec.MarshalLine()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(os.Stdout, string(line))
			}
			return nil
		},
	}
}
