//go:build !windows

package ingest

import (
	"errors"
	"syscall"
)

func isLockError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EAGAIN)
}
