// Package devicefs implements the high-level filesystem operations (spec
// component C) as small Python snippets dispatched through a Raw-REPL
// codec's Execute. Grounded on original_source/file_system.py:
// DeviceFileSystem's path normalization, stat/is_dir fallbacks for
// non-standard ports, and the per-core format recipes.
package devicefs

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/replx-dev/replx/internal/rerr"
)

// Executor is the subset of replcodec.Codec that devicefs needs; kept as
// an interface so filesystem logic can be tested without a real codec.
type Executor interface {
	Execute(payload []byte, sink func([]byte)) (stdout, stderr []byte, err error)
}

type FS struct {
	exec   Executor
	core   string
	rootFS string
}

func New(exec Executor, core, rootFS string) *FS {
	return &FS{exec: exec, core: core, rootFS: rootFS}
}

// SetCore updates the core and its device root fs once the real banner is
// known; the Connection constructs FS before the first EnterRaw, so core
// starts blank and is patched in here after Info() parses it.
func (f *FS) SetCore(core, rootFS string) {
	f.core = core
	f.rootFS = rootFS
}

// normalize rewrites path to live under the connection's device root fs,
// matching file_system.py's _normalize_remote_path.
func (f *FS) normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if f.rootFS == "" || f.rootFS == "/" {
		return path.Clean(p)
	}
	return path.Clean(path.Join(f.rootFS, p))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

// run executes a snippet and surfaces a DeviceError if the board wrote to
// stderr.
func (f *FS) run(snippet string) (string, error) {
	stdout, stderr, err := f.exec.Execute([]byte(snippet), nil)
	if err != nil {
		return "", err
	}
	if len(stderr) > 0 {
		return "", rerr.New(rerr.DeviceError, string(stderr))
	}
	return string(stdout), nil
}

// DirEntry is one row of an ls() result.
type DirEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// Ls lists path; recursive yields absolute paths for every entry found.
// Sorting: directories first, case-insensitive name ascending.
func (f *FS) Ls(p string, recursive bool) ([]DirEntry, error) {
	remote := f.normalize(p)
	snippet := fmt.Sprintf(`
import os, json
def _walk(d, rec):
    out = []
    for name in os.listdir(d):
        full = d.rstrip('/') + '/' + name
        try:
            st = os.stat(full)
            isdir = (st[0] & 0x4000) != 0
            size = st[6]
        except Exception:
            isdir = False
            size = 0
        out.append((full if rec else name, size, isdir))
        if rec and isdir:
            out.extend(_walk(full, rec))
    return out
print(json.dumps(_walk(%s, %s)))
`, quote(remote), pyBool(recursive))
	out, err := f.run(snippet)
	if err != nil {
		return nil, err
	}
	var rows [][3]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rows); err != nil {
		return nil, rerr.Wrap(rerr.DeviceError, "malformed ls output", err)
	}
	entries := make([]DirEntry, 0, len(rows))
	for _, r := range rows {
		name, _ := r[0].(string)
		size, _ := r[1].(float64)
		isDir, _ := r[2].(bool)
		entries = append(entries, DirEntry{Name: name, Size: int64(size), IsDir: isDir})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Stat returns the file size via os.stat, falling back to an open+seek
// probe on ports without os.stat (e.g. EFR32MG), per file_system.py.
func (f *FS) Stat(p string) (int64, error) {
	remote := f.normalize(p)
	snippet := fmt.Sprintf(`
try:
    import os
    print(os.stat(%s)[6])
except Exception:
    f = open(%s, 'rb')
    f.seek(0, 2)
    print(f.tell())
    f.close()
`, quote(remote), quote(remote))
	out, err := f.run(snippet)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, rerr.Wrap(rerr.DeviceError, "malformed stat output", err)
	}
	return n, nil
}

func (f *FS) IsDir(p string) (bool, error) {
	remote := f.normalize(p)
	snippet := fmt.Sprintf(`
try:
    import os
    print((os.stat(%s)[0] & 0x4000) != 0)
except Exception:
    try:
        import os
        os.listdir(%s)
        print(True)
    except Exception:
        print(False)
`, quote(remote), quote(remote))
	out, err := f.run(snippet)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "True", nil
}

func (f *FS) Mkdir(p string) error {
	remote := f.normalize(p)
	segments := strings.Split(strings.Trim(remote, "/"), "/")
	snippet := `
import os
def _mk(d):
    try:
        os.mkdir(d)
    except OSError as e:
        if e.args and e.args[0] == 17: # EEXIST
            pass
        else:
            raise
cur = ''
for seg in ` + pyList(segments) + `:
    cur += '/' + seg
    _mk(cur)
`
	_, err := f.run(snippet)
	return err
}

func (f *FS) Rm(p string) error {
	remote := f.normalize(p)
	_, err := f.run(fmt.Sprintf("import os\nos.remove(%s)\n", quote(remote)))
	return err
}

// Rmdir walks depth-first, tolerating per-entry failures, and retries the
// directory itself after its contents are gone.
func (f *FS) Rmdir(p string) error {
	remote := f.normalize(p)
	snippet := fmt.Sprintf(`
import os
def _rm(d):
    try:
        entries = os.listdir(d)
    except Exception:
        entries = []
    for name in entries:
        full = d.rstrip('/') + '/' + name
        try:
            if (os.stat(full)[0] & 0x4000) != 0:
                _rm(full)
            else:
                os.remove(full)
        except Exception:
            pass
    try:
        os.rmdir(d)
    except Exception:
        pass
_rm(%s)
`, quote(remote))
	_, err := f.run(snippet)
	return err
}

func (f *FS) Touch(p string) error {
	remote := f.normalize(p)
	_, err := f.run(fmt.Sprintf("open(%s, 'a').close()\n", quote(remote)))
	return err
}

// Mem triggers a GC and returns (free, allocated, total, percent).
type MemInfo struct {
	Free, Alloc, Total int64
	Percent            float64
}

func (f *FS) Mem() (MemInfo, error) {
	out, err := f.run(`
import gc, json
gc.collect()
free = gc.mem_free()
alloc = gc.mem_alloc()
total = free + alloc
print(json.dumps([free, alloc, total]))
`)
	if err != nil {
		return MemInfo{}, err
	}
	var nums [3]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &nums); err != nil {
		return MemInfo{}, rerr.Wrap(rerr.DeviceError, "malformed mem output", err)
	}
	info := MemInfo{Free: int64(nums[0]), Alloc: int64(nums[1]), Total: int64(nums[2])}
	if info.Total > 0 {
		info.Percent = float64(info.Alloc) / float64(info.Total) * 100
	}
	return info, nil
}

type DfInfo struct {
	Total, Used, Free int64
	Percent           float64
}

func (f *FS) Df(p string) (DfInfo, error) {
	remote := f.normalize(p)
	out, err := f.run(fmt.Sprintf(`
import os, json
st = os.statvfs(%s)
total = st[0] * st[2]
free = st[0] * st[3]
used = total - free
print(json.dumps([total, used, free]))
`, quote(remote)))
	if err != nil {
		return DfInfo{}, err
	}
	var nums [3]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &nums); err != nil {
		return DfInfo{}, rerr.Wrap(rerr.DeviceError, "malformed df output", err)
	}
	info := DfInfo{Total: int64(nums[0]), Used: int64(nums[1]), Free: int64(nums[2])}
	if info.Total > 0 {
		info.Percent = float64(info.Used) / float64(info.Total) * 100
	}
	return info, nil
}

// Format runs the core-keyed format recipe. EFR32MG requires a manual
// reconnect afterward.
func (f *FS) Format() error {
	var snippet string
	switch {
	case f.core == "RP2350" || f.core == "MIMXRT1062DVJ6A":
		snippet = `
import os
bdev = os.AbstractBlockDev
import rp2
flash = rp2.Flash()
os.VfsFat.mkfs(flash)
os.mount(flash, '/')
`
	case strings.HasPrefix(f.core, "ESP32"):
		snippet = `
import os
bdev = os.AbstractBlockDev
flash = os.VfsLfs2
import esp32
part = esp32.Partition.find(esp32.Partition.TYPE_DATA, label='vfs')[0]
os.VfsLfs2.mkfs(part)
os.mount(part, '/')
`
	case f.core == "EFR32MG":
		snippet = `
import os
os.fsformat('/flash')
`
	default:
		return rerr.New(rerr.ValidationError, "format unsupported for core "+f.core)
	}
	_, err := f.run(snippet)
	return err
}

const deviceChunkSize = 4096

// CatResult is the outcome of Cat: content is either raw text or, when
// is_binary is true, a hex string of the file's bytes.
type CatResult struct {
	Content  string
	IsBinary bool
}

// Cat reads path in deviceChunkSize device-side chunks. The first chunk is
// probed for valid UTF-8; on failure the whole read streams as hex, per
// file_system.py's binary-detection rule.
func (f *FS) Cat(p string) (CatResult, error) {
	remote := f.normalize(p)
	snippet := fmt.Sprintf(`
f = open(%s, 'rb')
while True:
    chunk = f.read(%d)
    if not chunk:
        break
    try:
        import sys
        sys.stdout.write(chunk.decode('utf-8'))
    except Exception:
        print(chunk.hex(), end='')
f.close()
`, quote(remote), deviceChunkSize)
	stdout, stderr, err := f.exec.Execute([]byte(snippet), nil)
	if err != nil {
		return CatResult{}, err
	}
	if len(stderr) > 0 {
		return CatResult{}, rerr.New(rerr.DeviceError, string(stderr))
	}
	if utf8.Valid(stdout) {
		return CatResult{Content: string(stdout)}, nil
	}
	return CatResult{Content: fmt.Sprintf("%x", stdout), IsBinary: true}, nil
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(it))
	}
	b.WriteByte(']')
	return b.String()
}
