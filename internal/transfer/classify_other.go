//go:build !unix

package transfer

import "github.com/ligustah/haul/internal/retry"

func classifyFilesystem(err error) retry.Class {
	return classifyPortable(err)
}
