package main

import (
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// lookuper is where subcommands read their environment from. Tests swap it
// for an envconfig.MapLookuper.
var lookuper envconfig.Lookuper = envconfig.OsLookuper()

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "User accounts service",
		Long: `accounts stores user credentials, issues signed JWTs on login and
authorizes requests by role. Configuration is read from the environment.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("accounts %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
