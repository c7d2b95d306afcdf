package main

import (
	"fmt"
	"os"
	"time"

	"github.com/replx-dev/replx/internal/protocol"
	"github.com/spf13/cobra"
)

func printStream(streamType protocol.StreamType, data []byte) {
	switch streamType {
	case protocol.StreamStdout:
		os.Stdout.Write(data)
	case protocol.StreamStderr:
		os.Stderr.Write(data)
	}
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <code>",
		Short: "Run a snippet of code and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			err = r.sendStreaming("exec", map[string]any{"code": args[0]}, &out, printStream, nil, 30*time.Second)
			if err != nil {
				return err
			}
			if !flagJSON {
				if stderr, _ := out["stderr"].(string); stderr != "" {
					fmt.Fprint(os.Stderr, stderr)
				}
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "run <code>",
		Short: "Run a snippet, optionally detached from this invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			if detach {
				var out map[string]any
				return r.send("run", map[string]any{"code": args[0], "detach": true}, &out)
			}
			var out map[string]any
			return r.sendStreaming("run", map[string]any{"code": args[0]}, &out, printStream, nil, 5*time.Minute)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "start in the background and return immediately")
	return cmd
}

func runStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-stop",
		Short: "Interrupt whatever is currently running",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("run_stop", nil, nil)
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Soft-reset the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("reset", nil, nil)
		},
	}
}
