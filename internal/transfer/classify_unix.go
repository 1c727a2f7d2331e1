//go:build unix

package transfer

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/ligustah/haul/internal/retry"
)

// fatalErrnos cannot be fixed by trying again. Every other errno is
// treated as transient.
var fatalErrnos = map[unix.Errno]struct{}{
	unix.EACCES:       {},
	unix.EPERM:        {},
	unix.ENOENT:       {},
	unix.EEXIST:       {},
	unix.EINVAL:       {},
	unix.ENOTDIR:      {},
	unix.EISDIR:       {},
	unix.ENOTEMPTY:    {},
	unix.EROFS:        {},
	unix.ENOSPC:       {},
	unix.EFBIG:        {},
	unix.ENAMETOOLONG: {},
	unix.ELOOP:        {},
	unix.EBADF:        {},
	unix.EXDEV:        {},
}

func classifyFilesystem(err error) retry.Class {
	var errno unix.Errno
	if errors.As(err, &errno) {
		if _, fatal := fatalErrnos[errno]; fatal {
			return retry.Fatal
		}
		return retry.Retryable
	}
	return classifyPortable(err)
}
