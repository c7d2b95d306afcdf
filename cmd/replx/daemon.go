package main

import (
	"fmt"

	"github.com/replx-dev/replx/internal/agentclient"
	"github.com/replx-dev/replx/internal/sessionid"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the replx agent daemon",
	}
	cmd.AddCommand(daemonStartCmd(), daemonStopCmd(), daemonStatusCmd())
	return cmd
}

func daemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the agent daemon if it is not already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentPort := flagAgentPort
			if agentPort == 0 {
				agentPort = defaultAgentPort
			}
			if agentclient.IsAgentRunning(agentPort) {
				fmt.Println("already running")
				return nil
			}
			if err := startDaemon(agentPort); err != nil {
				return err
			}
			fmt.Println("started")
			return nil
		},
	}
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentPort := flagAgentPort
			if agentPort == 0 {
				agentPort = defaultAgentPort
			}
			if !agentclient.IsAgentRunning(agentPort) {
				fmt.Println("not running")
				return nil
			}
			if err := agentclient.StopAgent(agentPort, sessionid.Get()); err != nil {
				return err
			}
			fmt.Println("stopped")
			return nil
		},
	}
}

func daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the agent daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentPort := flagAgentPort
			if agentPort == 0 {
				agentPort = defaultAgentPort
			}
			if agentclient.IsAgentRunning(agentPort) {
				fmt.Println("running")
			} else {
				fmt.Println("not running")
			}
			return nil
		},
	}
}
