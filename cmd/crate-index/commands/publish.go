package commands

import (
	"fmt"
	"os"

	"github.com/rust-bucket/crate-index/pkg/record"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

func (c *CLI) newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <record.json>",
		Short: "Insert a crate record from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) //nolint:gosec // path is provided by user
			if err != nil {
				return zerr.Wrap(err, "failed to read record file")
			}
			rec, err := record.UnmarshalLine(data)
			if err != nil {
				return err
			}

			idx, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := idx.Insert(cmd.Context(), rec); err != nil {
				return err
			}
			fmt.Printf("published %s %s\n", rec.Name, rec.Version)
			return nil
		},
	}
}
