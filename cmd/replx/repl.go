package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const replPollInterval = 30 * time.Millisecond

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Attach an interactive friendly REPL session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}

			var enterOut map[string]any
			if err := r.send("repl_enter", nil, &enterOut); err != nil {
				return err
			}
			defer r.send("repl_exit", nil, nil)

			if size, err := pty.GetsizeFull(os.Stdin); err == nil {
				fmt.Fprintf(os.Stderr, "repl attached (%dx%d)\r\n", size.Cols, size.Rows)
			} else {
				fmt.Fprintln(os.Stderr, "repl attached. Ctrl-] to exit.")
			}

			stdinFD := int(os.Stdin.Fd())
			oldState, err := term.MakeRaw(stdinFD)
			if err != nil {
				return fmt.Errorf("enter raw terminal mode: %w", err)
			}
			defer term.Restore(stdinFD, oldState)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go pollReplOutput(ctx, r)

			return pumpStdinToInput(r)
		},
	}
}

// pollReplOutput repeatedly calls repl_read and prints whatever accumulated
// since the last poll, the CLI-side half of the cursor-based buffer the
// codec maintains per attached session.
func pollReplOutput(ctx context.Context, r *resolved) {
	ticker := time.NewTicker(replPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var out struct {
				Data      string
				Truncated bool
			}
			if err := r.send("repl_read", nil, &out); err != nil {
				return
			}
			if out.Data != "" {
				os.Stdout.WriteString(out.Data)
			}
		}
	}
}

// pumpStdinToInput forwards raw keystrokes as `input` envelopes; Ctrl-]
// (0x1d) stops forwarding and returns, after which the caller's deferred
// repl_exit ends the attachment.
func pumpStdinToInput(r *resolved) error {
	buf := make([]byte, 256)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return err
		}
		for _, b := range buf[:n] {
			if b == 0x1d {
				return nil
			}
		}
		if err := r.client.SendInput(buf[:n], r.port); err != nil {
			return err
		}
	}
}
