//go:build !unix && !windows

package transfer

func isCrossDevice(error) bool { return false }
