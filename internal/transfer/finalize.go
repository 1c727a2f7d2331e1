package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/otiai10/copy"

	"github.com/ligustah/haul/internal/integrity"
)

// stagingSuffix marks a destination copy that is not complete yet.
const stagingSuffix = ".haul-partial"

// finalize verifies the temp file and promotes it to the destination.
func (e *Executor) finalize(modTime time.Time) error {
	if spec := e.Item.Integrity; spec != nil {
		e.Tracker.SetStatus("verifying " + e.Item.URL)
		if err := integrity.VerifyFile(e.TempPath, *spec); err != nil {
			var mismatch *integrity.MismatchError
			if errors.As(err, &mismatch) {
				e.discard()
				return err
			}
			return &FilesystemError{Op: "verify", Path: e.TempPath, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(e.Item.Dest), 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: filepath.Dir(e.Item.Dest), Err: err}
	}

	if err := e.promote(); err != nil {
		return err
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(e.Item.Dest, modTime, modTime); err != nil {
			e.log().Warningf("set modification time of %s: %v", e.Item.Dest, err)
		}
	}

	e.log().Infof("downloaded %s to %s", e.Item.URL, e.Item.Dest)
	e.Tracker.Finish("done " + e.Item.Dest)
	return nil
}

// promote moves the temp file to the destination. When the two are on
// different devices the bytes are copied to a staging file beside the
// destination, which is then renamed into place.
func (e *Executor) promote() error {
	rename := e.rename
	if rename == nil {
		rename = os.Rename
	}

	err := rename(e.TempPath, e.Item.Dest)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return &FilesystemError{Op: "rename", Path: e.Item.Dest, Err: err}
	}

	e.debugf("%s and %s are on different devices, copying", e.TempPath, e.Item.Dest)
	staging := e.Item.Dest + stagingSuffix
	if err := copy.Copy(e.TempPath, staging, copy.Options{Sync: true}); err != nil {
		os.Remove(staging)
		return &FilesystemError{Op: "copy", Path: staging, Err: err}
	}
	if err := os.Rename(staging, e.Item.Dest); err != nil {
		os.Remove(staging)
		return &FilesystemError{Op: "rename", Path: e.Item.Dest, Err: err}
	}
	if err := os.Remove(e.TempPath); err != nil {
		return &FilesystemError{Op: "remove", Path: e.TempPath, Err: err}
	}
	return nil
}
