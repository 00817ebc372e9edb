package dispatch

import (
	"strings"

	"shutdownsched/internal/task"
)

// Payload returns the command line that performs action on goos.
func Payload(goos string, action task.Action) []string {
	if goos == "windows" {
		if action == task.ActionReboot {
			return []string{"shutdown.exe", "/r", "/t", "0"}
		}
		return []string{"shutdown.exe", "/s", "/t", "0"}
	}
	if action == task.ActionReboot {
		return []string{"shutdown", "-r", "now"}
	}
	return []string{"shutdown", "-h", "now"}
}

// PayloadLine is Payload joined for shell-based backends.
func PayloadLine(goos string, action task.Action) string {
	return strings.Join(Payload(goos, action), " ")
}
