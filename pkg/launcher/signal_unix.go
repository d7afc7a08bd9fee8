//go:build !windows

package launcher

import (
	"os"
	"syscall"
)

func isReloadSignal(sig os.Signal) bool {
	return sig == syscall.SIGHUP
}
