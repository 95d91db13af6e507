package cmd

import (
	"github.com/spf13/cobra"
	"interview-room/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "interview-room",
		Short: "candidate interview room and admin roster",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(login(config))
	rootCmd.AddCommand(logout(config))
	rootCmd.AddCommand(mySessions(config))
	rootCmd.AddCommand(roster(config))
	rootCmd.AddCommand(deleteSession(config))
	rootCmd.AddCommand(archive(config))
	rootCmd.AddCommand(emitEvent(config))
	return rootCmd
}
