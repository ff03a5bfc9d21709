package capture

import "log"

// Logf receives every phase failure. Applications point it at their own
// error logger; the default writes through the standard logger.
var Logf = log.Printf

// Debugf receives progress messages. It is silent unless replaced.
var Debugf = func(format string, v ...any) {}

func logPhase(name, phase, path string, err error) {
	Logf("capture: %q phase=%s path=%s: %v", name, phase, path, err)
}
