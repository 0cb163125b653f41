package systemd

import "github.com/coreos/go-systemd/v22/daemon"

// Notify sends state to the service manager when ctrdash runs as a
// Type=notify unit. It reports false when NOTIFY_SOCKET is unset.
func Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Ready and Stopping are the states ctrdash sends.
const (
	Ready    = daemon.SdNotifyReady
	Stopping = daemon.SdNotifyStopping
)
