// Package nfcagent is a Go client for the NFC Agent, the local service that
// exposes attached NFC readers over HTTP and WebSocket APIs.
//
// Two clients are provided. Client talks to the agent's REST API and is the
// right choice for one-shot operations (list readers, read or write a card).
// Socket holds a persistent WebSocket connection, multiplexes request/response
// calls over it, and delivers card_detected/card_removed push events to
// registered handlers. CardPoller derives the same arrival/removal events by
// polling any of the two clients, for setups where push events are not needed.
package nfcagent

import (
	"runtime/debug"
	"time"

	"github.com/SimplyPrint/nfc-agent-go/internal/logging"
)

// Version information (set via ldflags in release builds)
var (
	Version   = ""
	BuildTime = ""
	GitCommit = ""
)

// EnableCrashReporting turns on Sentry capture for panics and unexpected
// connection failures inside the SDK. Off by default; reports go to the DSN
// in NFC_SDK_SENTRY_DSN, and NFC_SDK_SENTRY=0 force-disables regardless of
// this call. Returns whether reporting is active.
func EnableCrashReporting() bool {
	return logging.InitSentry(Version, true)
}

// FlushCrashReports sends any buffered crash reports, waiting at most
// timeout. Call before process exit when crash reporting is enabled.
func FlushCrashReports(timeout time.Duration) {
	logging.FlushSentry(timeout)
}

func init() {
	// If version wasn't set via ldflags, this is a dev build
	// Try to get VCS info from Go's build info
	if Version == "" {
		Version = "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			var vcsRevision, vcsTime string
			var vcsModified bool
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					vcsRevision = setting.Value
				case "vcs.time":
					vcsTime = setting.Value
				case "vcs.modified":
					vcsModified = setting.Value == "true"
				}
			}
			if vcsRevision != "" {
				shortCommit := vcsRevision
				if len(shortCommit) > 7 {
					shortCommit = shortCommit[:7]
				}
				GitCommit = vcsRevision
				Version = "dev-" + shortCommit
				if vcsModified {
					Version += "-dirty"
				}
			}
			if vcsTime != "" {
				BuildTime = vcsTime
			}
		}
	}
}
