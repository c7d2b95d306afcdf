package connection

import (
	"encoding/json"

	"github.com/replx-dev/replx/internal/devicefs"
	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/transfer"
)

func init() {
	register("ping", handlePing)
	register("status", handleStatus)
	register("free", handleMem)
	register("mem", handleMem)
	register("df", handleDf)
	register("ls", handleLs)
	register("cat", handleCat)
	register("stat", handleStat)
	register("is_dir", handleIsDir)
	register("mkdir", handleMkdir)
	register("rm", handleRm)
	register("rmdir", handleRmdir)
	register("touch", handleTouch)
	register("format", handleFormat)
	register("exec", handleExec)
	register("run", handleRun)
	register("run_stop", handleRunStop)
	register("reset", handleReset)
	register("get_file", handleGetFile)
	register("get_to_local", handleGetFile)
	register("put_file", handlePutFile)
	register("put_from_local", handlePutFile)
	register("putdir_from_local", handlePutDir)
	register("getdir_to_local", handleGetDir)
	register("cp", handleCp)
	register("mv", handleMv)
	register("repl_enter", handleReplEnter)
	register("repl_exit", handleReplExit)
	register("repl_write", handleReplWrite)
	register("repl_read", handleReplRead)
}

type pathArgs struct {
	Path string `json:"path"`
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return rerr.Wrap(rerr.ValidationError, "malformed arguments", err)
	}
	return nil
}

func handlePing(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	return map[string]any{"pong": true}, nil
}

func handleStatus(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	b := c.Busy()
	return map[string]any{
		"port":    c.Port,
		"busy":    b.Kind != Idle,
		"kind":    b.Kind.String(),
		"command": b.Command,
	}, nil
}

func handleMem(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	info, err := c.fs.Mem()
	if err != nil {
		return nil, err
	}
	return info, nil
}

func handleDf(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		a.Path = "/"
	}
	return c.fs.Df(a.Path)
}

type lsArgs struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

func handleLs(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a lsArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		a.Path = "/"
	}
	return c.fs.Ls(a.Path, a.Recursive)
}

func handleCat(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return c.fs.Cat(a.Path)
}

func handleStat(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	size, err := c.fs.Stat(a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"size": size}, nil
}

func handleIsDir(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	isDir, err := c.fs.IsDir(a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"is_dir": isDir}, nil
}

func handleMkdir(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.fs.Mkdir(a.Path)
}

func handleRm(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.fs.Rm(a.Path)
}

func handleRmdir(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.fs.Rmdir(a.Path)
}

func handleTouch(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.fs.Touch(a.Path)
}

func handleFormat(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	return nil, c.fs.Format()
}

type codeArgs struct {
	Code   string `json:"code"`
	Detach bool   `json:"detach"`
}

func handleExec(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a codeArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	stdout, stderr, err := c.codec.Execute([]byte(a.Code), func(chunk []byte) {
		if stream != nil {
			stream("stdout", jsonString(chunk))
		}
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"stdout": string(stdout), "stderr": string(stderr)}, nil
}

func jsonString(b []byte) json.RawMessage {
	raw, err := json.Marshal(b)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return raw
}

// handleRun implements non-detached (blocking, streamed) and detached
// (fire-and-forget) execution, the two run modes.
func handleRun(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a codeArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if !a.Detach {
		return handleExec(c, sid, args, stream)
	}

	c.setDetached()
	go func() {
		defer func() {
			c.mu.Lock()
			if c.busy.Kind == DetachedRunning {
				c.busy = BusyState{Kind: Idle}
			}
			c.mu.Unlock()
		}()
		stdout, stderr, err := c.codec.Execute([]byte(a.Code), func(chunk []byte) {
			if stream != nil {
				stream("stdout", jsonString(chunk))
			}
		})
		if err != nil {
			return
		}
		if stream != nil && len(stderr) > 0 {
			stream("stderr", jsonString(stderr))
		}
		_ = stdout
	}()
	return map[string]any{"started": true}, nil
}

func handleRunStop(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	c.requestInterrupt()
	c.codec.RequestInterrupt()
	c.t.Write([]byte{0x03}) // Ctrl-C, best-effort interrupt of the running program
	return map[string]any{"stopped": true}, nil
}

func handleReset(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	if err := c.codec.EnterRaw(true); err != nil {
		return nil, err
	}
	return nil, c.codec.ExitRaw()
}

type transferArgs struct {
	Remote string `json:"remote"`
	Local  string `json:"local"`
}

func handleGetFile(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a transferArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	err := c.xfer.Get(a.Remote, a.Local, func(p transfer.Progress) {
		if stream != nil {
			b, _ := json.Marshal(p)
			stream("progress", b)
		}
	})
	return nil, err
}

func handlePutFile(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a transferArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	err := c.xfer.Put(a.Local, a.Remote, func(p transfer.Progress) {
		if stream != nil {
			b, _ := json.Marshal(p)
			stream("progress", b)
		}
	})
	return nil, err
}

func handlePutDir(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a transferArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	err := c.xfer.PutDir(a.Local, a.Remote, c.codec, func(p transfer.Progress) {
		if stream != nil {
			b, _ := json.Marshal(p)
			stream("progress", b)
		}
	})
	return nil, err
}

// fsListerAdapter adapts devicefs.FS.Ls to transfer.Lister's ListEntry
// shape, keeping the transfer package free of a devicefs import (see
// directory.go's note on the split).
type fsListerAdapter struct{ fs *devicefs.FS }

func (a fsListerAdapter) Ls(path string, recursive bool) ([]transfer.ListEntry, error) {
	entries, err := a.fs.Ls(path, recursive)
	if err != nil {
		return nil, err
	}
	out := make([]transfer.ListEntry, len(entries))
	for i, e := range entries {
		out[i] = transfer.ListEntry{Name: e.Name, Size: e.Size, IsDir: e.IsDir}
	}
	return out, nil
}

func handleGetDir(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a transferArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	lister := fsListerAdapter{fs: c.fs}
	err := c.xfer.GetDir(a.Remote, a.Local, lister, func(p transfer.Progress) {
		if stream != nil {
			b, _ := json.Marshal(p)
			stream("progress", b)
		}
	})
	return nil, err
}

type cpArgs struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func handleCp(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a cpArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.xfer.Cp(a.Src, a.Dst)
}

func handleMv(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	var a cpArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return nil, c.xfer.Mv(a.Src, a.Dst, c.fs)
}
