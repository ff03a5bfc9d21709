package main

import "time"

const (
	maxMessages = 1000
	// hudMessages is how many console lines the HUD shows at once.
	hudMessages   = 6
	hudMessageAge = 8 * time.Second
)

var consoleLog = messageLog{max: maxMessages}

func consoleMessage(msg string) {
	if msg == "" {
		return
	}
	consoleLog.Add(msg)
}

// hudLines returns the recent console lines drawn over the world.
func hudLines(now time.Time) []string {
	recent := consoleLog.Recent(hudMessages, hudMessageAge, now)
	out := make([]string, len(recent))
	for i, m := range recent {
		if gs.ConsoleTimestamps {
			format := gs.TimestampFormat
			if format == "" {
				format = "3:04PM"
			}
			out[i] = "[" + m.Time.Format(format) + "] " + m.Text
			continue
		}
		out[i] = m.Text
	}
	return out
}
