// Package commands implements the CLI commands for the crate-index tool.
package commands

import (
	"context"
	"time"

	crateindex "github.com/rust-bucket/crate-index"
	"github.com/rust-bucket/crate-index/internal/adapters/config"
	"github.com/rust-bucket/crate-index/internal/adapters/logger"
	"github.com/spf13/cobra"
)

// CLI represents the command line interface for crate-index.
type CLI struct {
	rootCmd  *cobra.Command
	settings *config.Settings
}

// New creates a new CLI instance.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "crate-index",
		Short:         "Manage a crate registry index backed by git",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFileName, "Path to settings file")
	rootCmd.PersistentFlags().StringP("root", "r", "", "Index root directory (overrides settings)")

	c := &CLI{rootCmd: rootCmd}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		settings, err := config.Load(path)
		if err != nil {
			return err
		}
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			settings.Root = root
		}
		if settings.Root == "" {
			settings.Root = "."
		}
		c.settings = settings
		return nil
	}

	rootCmd.AddCommand(c.newInitCmd())
	rootCmd.AddCommand(c.newPublishCmd())
	rootCmd.AddCommand(c.newYankCmd())
	rootCmd.AddCommand(c.newUnyankCmd())
	rootCmd.AddCommand(c.newQueryCmd())
	rootCmd.AddCommand(c.newSyncCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// options assembles index options from the loaded settings.
func (c *CLI) options() []crateindex.Option {
	opts := []crateindex.Option{crateindex.WithLogger(logger.New())}

	s := c.settings
	if s.API != "" {
		opts = append(opts, crateindex.WithAPI(s.API))
	}
	if s.Origin != "" {
		opts = append(opts, crateindex.WithOrigin(s.Origin))
	}
	for _, reg := range s.AllowedRegistries {
		opts = append(opts, crateindex.WithAllowedRegistry(reg))
	}
	if s.Identity.Name != "" || s.Identity.Email != "" {
		opts = append(opts, crateindex.WithIdentity(s.Identity.Name, s.Identity.Email))
	}
	if s.LockTimeout > 0 {
		opts = append(opts, crateindex.WithLockTimeout(time.Duration(s.LockTimeout)))
	}
	if s.SyncTimeout > 0 {
		opts = append(opts, crateindex.WithSyncTimeout(time.Duration(s.SyncTimeout)))
	}
	return opts
}

// open attaches to the index named by the settings.
func (c *CLI) open(ctx context.Context) (*crateindex.Index, error) {
	return crateindex.Open(ctx, c.settings.Root, c.options()...)
}
