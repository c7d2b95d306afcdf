// Command replx is the CLI front-end: a short-lived process that resolves
// the target board from the workspace's `.replx` file, auto-starts the
// agent daemon if needed, and sends one UDP request per invocation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagPort      string
	flagAgentPort int
	flagJSON      bool
)

func main() {
	root := &cobra.Command{
		Use:   "replx",
		Short: "replx — developer tool for MicroPython boards",
		Long:  "Talks to a persistent agent daemon that owns serial ports and multiplexes concurrent clients.",
	}
	root.PersistentFlags().StringVar(&flagPort, "port", "", "target serial port (defaults to workspace foreground/default)")
	root.PersistentFlags().IntVar(&flagAgentPort, "agent-port", 0, "agent daemon UDP port (defaults to workspace-recorded port)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON results")

	root.AddCommand(
		pingCmd(),
		statusCmd(),
		sessionsCmd(),
		connectCmd(),
		disconnectCmd(),
		lsCmd(),
		catCmd(),
		statCmd(),
		isDirCmd(),
		memCmd(),
		dfCmd(),
		rmCmd(),
		rmdirCmd(),
		mkdirCmd(),
		touchCmd(),
		formatCmd(),
		cpCmd(),
		mvCmd(),
		execCmd(),
		runCmd(),
		runStopCmd(),
		resetCmd(),
		replCmd(),
		putCmd(),
		getCmd(),
		daemonCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
