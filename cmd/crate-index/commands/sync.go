package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push committed revisions to the remote, or pull with --pull",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			if pull, _ := cmd.Flags().GetBool("pull"); pull {
				if err := idx.Pull(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("pulled from origin")
				return nil
			}

			if err := idx.Sync(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("synced with origin")
			return nil
		},
	}
	cmd.Flags().Bool("pull", false, "Fast-forward the working tree from the remote instead of pushing")
	return cmd
}
