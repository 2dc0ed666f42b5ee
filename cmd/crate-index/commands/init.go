package commands

import (
	"fmt"

	crateindex "github.com/rust-bucket/crate-index"
	"github.com/spf13/cobra"
)

func (c *CLI) newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a fresh index at the root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			download, err := cmd.Flags().GetString("download")
			if err != nil {
				return err
			}
			if download == "" {
				download = c.settings.Download
			}

			idx, err := crateindex.Initialise(cmd.Context(), c.settings.Root, download, c.options()...)
			if err != nil {
				return err
			}
			fmt.Printf("initialised index at %s\n", idx.Root())
			return nil
		},
	}
	cmd.Flags().StringP("download", "d", "", "Download URL template with {crate} and {version} placeholders")
	return cmd
}
