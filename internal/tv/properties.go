package tv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Properties holds the raw device facts gathered by one refresh. Fields
// past the point where the device output was truncated keep their zero
// values (WakeLockSize uses -1 for "not reported").
type Properties struct {
	ScreenOn          bool
	Awake             bool
	WakeLockSize      int
	CurrentApp        string
	MediaSessionState int
	RunningApps       []string
}

var (
	wakeLockRe     = regexp.MustCompile(`size=(\d+)`)
	mediaSessionRe = regexp.MustCompile(`state=(\d+)`)
)

// ParseProperties decodes the combined output of PropertiesCommand. The
// device prints the screen and awake flags as single characters followed
// by one line each for wake locks, current app, media session state, and
// the running app list. Output truncated by a sleeping device is valid;
// output that does not start with the flag characters is not.
func ParseProperties(output string) (Properties, error) {
	props := Properties{WakeLockSize: -1}

	// A powered-down device produces nothing at all.
	if output == "" {
		return props, nil
	}

	if output[0] != '0' && output[0] != '1' {
		return props, fmt.Errorf("unrecognized screen flag in output %q", firstLine(output))
	}
	props.ScreenOn = output[0] == '1'

	if len(output) < 2 {
		return props, nil
	}
	if output[1] != '0' && output[1] != '1' {
		return props, fmt.Errorf("unrecognized awake flag in output %q", firstLine(output))
	}
	props.Awake = output[1] == '1'

	lines := strings.Split(strings.TrimSpace(output), "\n")

	// Wake lock count shares the first line with the flags.
	if len(lines[0]) < 3 {
		return props, nil
	}
	props.WakeLockSize = parseWakeLockSize(lines[0])

	if len(lines) < 2 {
		return props, nil
	}
	props.CurrentApp = parseCurrentApp(lines[1])

	if len(lines) < 3 {
		return props, nil
	}
	props.MediaSessionState = parseMediaSessionState(lines[2])

	if len(lines) < 4 {
		return props, nil
	}
	props.RunningApps = parseRunningApps(lines[3:])

	return props, nil
}

// parseWakeLockSize extracts the lock count from a dumpsys power line such
// as "Wake Locks: size=2". Returns -1 when the count is absent.
func parseWakeLockSize(line string) int {
	match := wakeLockRe.FindStringSubmatch(line)
	if match == nil {
		return -1
	}
	size, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return size
}

// parseCurrentApp extracts the focused package from a window dump line.
// The shell pipeline usually reduces the line to the bare package name,
// but a window suffix ("pkg/activity") survives on some builds.
func parseCurrentApp(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	fields := strings.Fields(line)
	app := fields[len(fields)-1]
	app = strings.TrimSuffix(app, "}")
	if idx := strings.Index(app, "/"); idx >= 0 {
		app = app[:idx]
	}
	return app
}

// parseMediaSessionState extracts the numeric playback state from a
// "state=PlaybackState {state=3, ...}" dump line. Returns 0 when no
// session state is reported.
func parseMediaSessionState(line string) int {
	match := mediaSessionRe.FindStringSubmatch(line)
	if match == nil {
		return 0
	}
	state, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return state
}

// parseRunningApps extracts package names from ps output lines, one
// process per line with the package in the final column.
func parseRunningApps(lines []string) []string {
	apps := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		apps = append(apps, fields[len(fields)-1])
	}
	if len(apps) == 0 {
		return nil
	}
	return apps
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
