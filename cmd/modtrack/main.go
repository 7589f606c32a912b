package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modtrack",
		Short: "Track moderation transitions and score history for a subreddit",
	}

	root.AddCommand(runCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(authCmd())

	return root
}

func runCmd() *cobra.Command {
	var skipRecheck bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one poll cycle: discovery scan plus recheck",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(skipRecheck)
		},
	}

	cmd.Flags().BoolVar(&skipRecheck, "skip-recheck", false, "run only the discovery scan")
	return cmd
}

func reportCmd() *cobra.Command {
	var (
		jsonOutput bool
		sinceDays  int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the moderation heuristic report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(jsonOutput, sinceDays)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&sinceDays, "days", 7, "report window in days")
	return cmd
}

func authCmd() *cobra.Command {
	var (
		port   int
		scopes string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Interactive one-time OAuth bootstrap to obtain a refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(port, scopes)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8585, "local callback port")
	cmd.Flags().StringVar(&scopes, "scopes", "read history", "OAuth scopes to request")
	return cmd
}
