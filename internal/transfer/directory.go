package transfer

import (
	"os"
	"path/filepath"
	"strings"
)

// PutDir uploads a local directory tree, reusing a single Raw-REPL session
// for the whole transfer: enter Raw once, batch-upload every file, leave
// Raw once. It does not create remote directories: every remote parent
// directory of an uploaded file must already exist on the device. Mirrors file_system.py's directory-upload reuse.
func (e *Engine) PutDir(localDir, remoteDir string, session RawSession, progress ProgressFunc) error {
	if session != nil {
		if err := session.EnterRaw(false); err != nil {
			return err
		}
		defer session.ExitRaw()
	}

	var files []FileSpec
	err := filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		remote := strings.TrimSuffix(remoteDir, "/") + "/" + filepath.ToSlash(rel)
		files = append(files, FileSpec{Local: p, Remote: remote})
		return nil
	})
	if err != nil {
		return err
	}

	total := int64(len(files))
	for i, spec := range files {
		if progress != nil {
			progress(Progress{Current: int64(i), Total: total, File: spec.Remote, Status: "starting"})
		}
		if err := e.putOne(spec, nil); err != nil {
			return err
		}
		if progress != nil {
			progress(Progress{Current: int64(i + 1), Total: total, File: spec.Remote, Status: "done"})
		}
	}
	return nil
}

// Lister is the subset of devicefs.FS needed to plan a directory download.
type Lister interface {
	Ls(path string, recursive bool) ([]ListEntry, error)
}

// ListEntry mirrors devicefs.DirEntry without importing that package, to
// avoid a transfer<->devicefs import cycle; the Connection layer adapts.
type ListEntry struct {
	Name  string
	Size  int64
	IsDir bool
}

// GetDir walks the remote tree via lister, computes a file plan, then
// downloads each file, emitting a single progress stream with a status
// field per file. The stream is not
// ordered relative to the final response; callers merge by seq.
func (e *Engine) GetDir(remoteDir, localDir string, lister Lister, progress ProgressFunc) error {
	entries, err := lister.Ls(remoteDir, true)
	if err != nil {
		return err
	}
	var files []ListEntry
	for _, en := range entries {
		if !en.IsDir {
			files = append(files, en)
		}
	}
	total := int64(len(files))
	for i, f := range files {
		rel := strings.TrimPrefix(f.Name, strings.TrimSuffix(remoteDir, "/")+"/")
		local := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return err
		}
		if progress != nil {
			progress(Progress{Current: int64(i), Total: total, File: f.Name, Status: "starting"})
		}
		if err := e.Get(f.Name, local, nil); err != nil {
			return err
		}
		if progress != nil {
			progress(Progress{Current: int64(i + 1), Total: total, File: f.Name, Status: "done"})
		}
	}
	return nil
}
