package launcher

import (
	"github.com/core-tools/hsu-launch-go/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports launcher readiness to a service manager
type Notifier interface {
	Notify(state string)
}

// systemdNotifier talks to NOTIFY_SOCKET and does nothing when it is unset
type systemdNotifier struct {
	logger logging.Logger
}

func NewSystemdNotifier(logger logging.Logger) Notifier {
	return &systemdNotifier{logger: logger}
}

func (n *systemdNotifier) Notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warnf("Failed to notify service manager, state: %s, error: %v", state, err)
		return
	}
	if sent {
		n.logger.Debugf("Notified service manager, state: %s", state)
	}
}
