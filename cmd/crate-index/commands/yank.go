package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newYankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "yank <crate> <version>",
		Short: "Exclude a version from new dependency resolution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := idx.Yank(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("yanked %s %s\n", args[0], args[1])
			return nil
		},
	}
}

func (c *CLI) newUnyankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unyank <crate> <version>",
		Short: "Clear the yanked flag on a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := idx.Unyank(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("unyanked %s %s\n", args[0], args[1])
			return nil
		},
	}
}
