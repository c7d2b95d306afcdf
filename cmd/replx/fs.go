package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func lsCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory on the device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			r, err := resolve()
			if err != nil {
				return err
			}
			var entries []map[string]any
			if err := r.send("ls", map[string]any{"path": path, "recursive": recursive}, &entries); err != nil {
				return err
			}
			if flagJSON {
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%v\t%v\t%v\n", e["name"], e["size"], e["is_dir"])
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list recursively")
	return cmd
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a device file's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out struct {
				Content  string
				IsBinary bool
			}
			if err := r.send("cat", map[string]any{"path": args[0]}, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Print(out.Content)
			}
			return nil
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print a device file's size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("stat", map[string]any{"path": args[0]}, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Println(out["size"])
			}
			return nil
		},
	}
}

func isDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "is-dir <path>",
		Short: "Report whether a device path is a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("is_dir", map[string]any{"path": args[0]}, &out); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Println(out["is_dir"])
			}
			return nil
		},
	}
}

func memCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mem",
		Short: "Show device memory usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("mem", nil, &out); err != nil {
				return err
			}
			if !flagJSON {
				b, _ := json.Marshal(out)
				fmt.Println(string(b))
			}
			return nil
		},
	}
}

func dfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df [path]",
		Short: "Show device filesystem usage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			r, err := resolve()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := r.send("df", map[string]any{"path": path}, &out); err != nil {
				return err
			}
			if !flagJSON {
				b, _ := json.Marshal(out)
				fmt.Println(string(b))
			}
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a device file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("rm", map[string]any{"path": args[0]}, nil)
		},
	}
}

func rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Remove a device directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("rmdir", map[string]any{"path": args[0]}, nil)
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a device directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("mkdir", map[string]any{"path": args[0]}, nil)
		},
	}
}

func touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path>",
		Short: "Create an empty device file if absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("touch", map[string]any{"path": args[0]}, nil)
		},
	}
}

func formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Reformat the device filesystem (destructive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("format", nil, nil)
		},
	}
}

func cpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <src> <dst>",
		Short: "Copy a file on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("cp", map[string]any{"src": args[0], "dst": args[1]}, nil)
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move/rename a file on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolve()
			if err != nil {
				return err
			}
			return r.send("mv", map[string]any{"src": args[0], "dst": args[1]}, nil)
		},
	}
}
