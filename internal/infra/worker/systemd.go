package worker

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifySystemd reports a state change to systemd for Type=notify units.
// Outside systemd NOTIFY_SOCKET is unset and the call does nothing.
func NotifySystemd(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		logger.Warn("systemd notification failed",
			slog.String("state", state),
			slog.Any("error", err))
	case sent:
		logger.Debug("systemd notified", slog.String("state", state))
	}
}

// systemd states sent by the worker.
const (
	SystemdReady    = daemon.SdNotifyReady
	SystemdStopping = daemon.SdNotifyStopping
)
