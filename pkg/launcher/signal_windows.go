package launcher

import "os"

func isReloadSignal(sig os.Signal) bool {
	return false
}
