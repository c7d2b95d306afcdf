// Package transfer implements chunked upload/download with progress
// streaming and batch mode (spec component D). Grounded on
// original_source/file_system.py's get/put_files_batch: the same
// device-side chunk size, the same 16 KiB source-batch limit, and the
// same directory-upload session reuse (enter Raw once, leave Raw once).
package transfer

import (
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
)

const (
	deviceChunkSize = 4096
	batchLimit      = 16 * 1024
)

// Executor is the Raw-REPL execute primitive the transfer engine drives.
type Executor interface {
	Execute(payload []byte, sink func([]byte)) (stdout, stderr []byte, err error)
}

// RawSession lets the engine bracket a whole directory transfer in one
// Raw-REPL session instead of re-entering per file.
type RawSession interface {
	EnterRaw(softReset bool) error
	ExitRaw() error
}

// Progress is emitted for each chunk/file during a transfer.
type Progress struct {
	Current int64
	Total   int64
	File    string
	Bytes   int64
	Status  string // "starting" | "downloading" | "done", directory transfers only
}

type ProgressFunc func(Progress)

type Engine struct {
	exec   Executor
	rootFS string
}

func New(exec Executor, rootFS string) *Engine {
	return &Engine{exec: exec, rootFS: rootFS}
}

// SetRootFS updates the device root fs once the real banner is parsed; see
// devicefs.FS.SetCore for why this is patched in after construction.
func (e *Engine) SetRootFS(rootFS string) {
	e.rootFS = rootFS
}

func (e *Engine) normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if e.rootFS == "" || e.rootFS == "/" {
		return path.Clean(p)
	}
	return path.Clean(path.Join(e.rootFS, p))
}

func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "\\'") + "'" }

// statSize returns the remote file size via a one-off Execute, mirroring
// file_system.py's get() calling self.state(remote) up front.
func (e *Engine) statSize(remote string) (int64, error) {
	stdout, stderr, err := e.exec.Execute([]byte(fmt.Sprintf(
		"import os\nprint(os.stat(%s)[6])\n", quote(remote))), nil)
	if err != nil {
		return 0, err
	}
	if len(stderr) > 0 {
		return 0, rerr.New(rerr.DeviceError, string(stderr))
	}
	var n int64
	fmt.Sscanf(strings.TrimSpace(string(stdout)), "%d", &n)
	return n, nil
}

// Get downloads remote to local, chunked in deviceChunkSize device reads,
// emitting a progress event per chunk.
func (e *Engine) Get(remote, local string, progress ProgressFunc) error {
	remotePath := e.normalize(remote)
	size, err := e.statSize(remotePath)
	if err != nil {
		return err
	}

	out, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer out.Close()

	var read int64
	for read < size || size == 0 {
		snippet := fmt.Sprintf(`
f = open(%s, 'rb')
f.seek(%d)
chunk = f.read(%d)
f.close()
import sys
sys.stdout.buffer.write(chunk)
`, quote(remotePath), read, deviceChunkSize)
		stdout, stderr, err := e.exec.Execute([]byte(snippet), nil)
		if err != nil {
			return err
		}
		if len(stderr) > 0 {
			return rerr.New(rerr.DeviceError, string(stderr))
		}
		if len(stdout) == 0 {
			break
		}
		if _, err := out.Write(stdout); err != nil {
			return fmt.Errorf("write local file: %w", err)
		}
		read += int64(len(stdout))
		if progress != nil {
			progress(Progress{Current: read, Total: size, File: remote})
		}
		if size > 0 && read >= size {
			break
		}
		if int64(len(stdout)) < deviceChunkSize {
			break
		}
	}
	if size > 0 && read < size {
		return rerr.New(rerr.DeviceError, fmt.Sprintf("short read: got %d of %d bytes", read, size))
	}
	return nil
}

// FileSpec is one file in a batched put.
type FileSpec struct {
	Local  string
	Remote string
}

// Put uploads a single local file, batching 4 KiB local reads into
// f.write(bytes.fromhex('...')); statements up to batchLimit bytes of source per
// Execute call, amortizing round-trip cost exactly like put_files_batch.
func (e *Engine) Put(local, remote string, progress ProgressFunc) error {
	return e.PutBatch([]FileSpec{{Local: local, Remote: remote}}, progress)
}

// PutBatch uploads several files within a single open-file-per-file
// sequence, batching write statements the same way regardless of file
// count.
func (e *Engine) PutBatch(files []FileSpec, progress ProgressFunc) error {
	for _, spec := range files {
		if err := e.putOne(spec, progress); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) putOne(spec FileSpec, progress ProgressFunc) error {
	remote := e.normalize(spec.Remote)
	data, err := os.ReadFile(spec.Local)
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	total := int64(len(data))

	openSnippet := fmt.Sprintf("f = open(%s, 'wb')\n", quote(remote))
	if _, stderr, err := e.exec.Execute([]byte(openSnippet), nil); err != nil {
		return err
	} else if len(stderr) > 0 {
		return rerr.New(rerr.DeviceError, string(stderr))
	}

	var sent int64
	var batch strings.Builder
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		src := batch.String()
		_, stderr, err := e.exec.Execute([]byte(src), nil)
		batch.Reset()
		if err != nil {
			return e.retryOnce(err, func() error {
				_, stderr, err := e.exec.Execute([]byte(src), nil)
				if err != nil {
					return err
				}
				if len(stderr) > 0 {
					return rerr.New(rerr.DeviceError, string(stderr))
				}
				return nil
			})
		}
		if len(stderr) > 0 {
			return rerr.New(rerr.DeviceError, string(stderr))
		}
		return nil
	}

	const localChunk = 4096
	for off := 0; off < len(data); off += localChunk {
		end := off + localChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		stmt := fmt.Sprintf("f.write(bytes.fromhex(%s));", quote(hex.EncodeToString(chunk)))
		if batch.Len()+len(stmt) > batchLimit {
			if err := flush(); err != nil {
				return err
			}
		}
		batch.WriteString(stmt)
		batch.WriteByte('\n')
		sent += int64(len(chunk))
		if progress != nil {
			progress(Progress{Current: sent, Total: total, File: spec.Remote, Bytes: sent})
		}
	}
	if err := flush(); err != nil {
		return err
	}
	_, stderr, err := e.exec.Execute([]byte("f.close()\n"), nil)
	if err != nil {
		return err
	}
	if len(stderr) > 0 {
		return rerr.New(rerr.DeviceError, string(stderr))
	}
	return nil
}

// retryOnce retries a transient transfer error once after a 200ms pause.
func (e *Engine) retryOnce(cause error, retry func() error) error {
	if rerr.Is(cause, rerr.Disconnected) {
		return cause
	}
	time.Sleep(200 * time.Millisecond)
	if err := retry(); err != nil {
		return err
	}
	return nil
}
