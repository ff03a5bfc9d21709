package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/gen2brain/beeep"
)

// headlessDisplay reports whether there is no display to talk to.
func headlessDisplay() bool {
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}

// notifyDesktop shows a desktop notification, best-effort and non-fatal.
func notifyDesktop(title, body, icon string) {
	if body == "" || headlessDisplay() {
		return
	}
	if err := beeep.Notify(title, body, icon); err != nil {
		logDebug("notify: %v", err)
	}
}

// notifyScreenshot announces a saved screenshot. The file itself is used as
// the notification icon.
func notifyScreenshot(path, detail string) {
	if !gs.Notifications {
		return
	}
	notifyDesktop("Screenshot saved", filepath.Base(path)+" ("+detail+")", path)
}
