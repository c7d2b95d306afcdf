package transfer

import "os"

// Remover is the subset of devicefs.FS needed to finish a move.
type Remover interface {
	Rm(path string) error
}

// Cp copies a device file by way of the host: download to a local temp file,
// then upload under the new remote name. Mirrors file_system.py's
// composition of get/put for cp/mv rather than a native device-side copy.
func (e *Engine) Cp(src, dst string) error {
	tmp, err := os.CreateTemp("", "replx-cp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := e.Get(src, tmpPath, nil); err != nil {
		return err
	}
	return e.Put(tmpPath, dst, nil)
}

// Mv composes Cp followed by a remote Rm of the source.
func (e *Engine) Mv(src, dst string, rm Remover) error {
	if err := e.Cp(src, dst); err != nil {
		return err
	}
	return rm.Rm(src)
}
