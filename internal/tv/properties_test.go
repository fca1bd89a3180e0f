package tv

import (
	"reflect"
	"testing"
)

const fullOutput = "11Wake Locks: size=2\n" +
	"com.netflix.ninja\n" +
	"  state=PlaybackState {state=3, position=0, buffered position=0}\n" +
	"u0_a2     987   170   998196 64796 0 0 S com.netflix.ninja\n" +
	"u0_a5     1024  170   888888 12345 0 0 S com.amazon.tv.launcher"

func TestParsePropertiesFullOutput(t *testing.T) {
	props, err := ParseProperties(fullOutput)
	if err != nil {
		t.Fatalf("ParseProperties failed: %v", err)
	}

	want := Properties{
		ScreenOn:          true,
		Awake:             true,
		WakeLockSize:      2,
		CurrentApp:        "com.netflix.ninja",
		MediaSessionState: 3,
		RunningApps:       []string{"com.netflix.ninja", "com.amazon.tv.launcher"},
	}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("ParseProperties() = %+v, want %+v", props, want)
	}
}

func TestParsePropertiesTruncated(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Properties
	}{
		{
			"empty output",
			"",
			Properties{WakeLockSize: -1},
		},
		{
			"screen flag only",
			"1",
			Properties{ScreenOn: true, WakeLockSize: -1},
		},
		{
			"screen off",
			"0",
			Properties{WakeLockSize: -1},
		},
		{
			"flags only",
			"10",
			Properties{ScreenOn: true, WakeLockSize: -1},
		},
		{
			"no current app",
			"11Wake Locks: size=1",
			Properties{ScreenOn: true, Awake: true, WakeLockSize: 1},
		},
		{
			"no media session line",
			"11Wake Locks: size=1\ncom.amazon.tv.launcher",
			Properties{ScreenOn: true, Awake: true, WakeLockSize: 1, CurrentApp: "com.amazon.tv.launcher"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props, err := ParseProperties(tt.output)
			if err != nil {
				t.Fatalf("ParseProperties failed: %v", err)
			}
			if !reflect.DeepEqual(props, tt.want) {
				t.Errorf("ParseProperties(%q) = %+v, want %+v", tt.output, props, tt.want)
			}
		})
	}
}

func TestParsePropertiesMalformed(t *testing.T) {
	for _, output := range []string{"x", "1x", "garbage output"} {
		if _, err := ParseProperties(output); err == nil {
			t.Errorf("ParseProperties(%q) should fail", output)
		}
	}
}

func TestParseCurrentApp(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"com.netflix.ninja", "com.netflix.ninja"},
		{"  com.netflix.ninja  ", "com.netflix.ninja"},
		{"mCurrentFocus=Window{abc u0 com.netflix.ninja/com.netflix.ninja.MainActivity}", "com.netflix.ninja"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := parseCurrentApp(tt.line); got != tt.want {
			t.Errorf("parseCurrentApp(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestParseWakeLockSize(t *testing.T) {
	if got := parseWakeLockSize("Wake Locks: size=4"); got != 4 {
		t.Errorf("parseWakeLockSize = %d, want 4", got)
	}
	if got := parseWakeLockSize("Wake Locks:"); got != -1 {
		t.Errorf("parseWakeLockSize without count = %d, want -1", got)
	}
}

func TestParseMediaSessionState(t *testing.T) {
	if got := parseMediaSessionState("  state=PlaybackState {state=2, position=0}"); got != 2 {
		t.Errorf("parseMediaSessionState = %d, want 2", got)
	}
	if got := parseMediaSessionState("no session"); got != 0 {
		t.Errorf("parseMediaSessionState without state = %d, want 0", got)
	}
}
