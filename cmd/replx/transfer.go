package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// printTransferProgress renders a transfer.Progress payload; args is the
// raw JSON the agent server forwarded verbatim from the transfer engine.
func printTransferProgress(data json.RawMessage) {
	var p struct {
		Current int64
		Total   int64
		File    string
		Bytes   int64
		Status  string
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if p.Total > 0 {
		fmt.Printf("\r%s: %s / %s", p.File, humanize.Bytes(uint64(p.Current)), humanize.Bytes(uint64(p.Total)))
	} else {
		fmt.Printf("\r%s: %s", p.File, humanize.Bytes(uint64(p.Bytes)))
	}
}

func putCmd() *cobra.Command {
	var dir bool
	cmd := &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "Upload a local file (or directory, with -r) to the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			command := "put_from_local"
			if dir {
				command = "putdir_from_local"
			}
			payload := map[string]any{"local": args[0], "remote": args[1]}
			err = r.sendStreaming(command, payload, nil, nil, printTransferProgress, 5*time.Minute)
			if err == nil {
				fmt.Println()
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&dir, "recursive", "r", false, "upload a directory")
	return cmd
}

func getCmd() *cobra.Command {
	var dir bool
	cmd := &cobra.Command{
		Use:   "get <remote> <local>",
		Short: "Download a device file (or directory, with -r) to local disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			command := "get_to_local"
			if dir {
				command = "getdir_to_local"
			}
			payload := map[string]any{"remote": args[0], "local": args[1]}
			err = r.sendStreaming(command, payload, nil, nil, printTransferProgress, 5*time.Minute)
			if err == nil {
				fmt.Println()
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&dir, "recursive", "r", false, "download a directory")
	return cmd
}
