package tv_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/achupryn/atvbridge/internal/adb"
	"github.com/achupryn/atvbridge/internal/tv"
)

const netflixPlaying = "11Wake Locks: size=2\n" +
	"com.netflix.ninja\n" +
	"  state=PlaybackState {state=3, position=0}\n" +
	"u0_a2     987   170   998196 64796 0 0 S com.netflix.ninja"

type fakeManager struct {
	target       string
	connectOK    bool
	refreshAfter bool
	available    bool

	shellFunc func(cmd string) (*string, error)

	connectCalls int
	shellCalls   int
	closeCalls   int
}

func (m *fakeManager) Connect(alwaysLogErrors bool) bool {
	m.connectCalls++
	m.available = m.connectOK
	return m.connectOK
}

func (m *fakeManager) Shell(cmd string) (*string, error) {
	m.shellCalls++
	if m.shellFunc != nil {
		return m.shellFunc(cmd)
	}
	return nil, nil
}

func (m *fakeManager) Close() {
	m.closeCalls++
	m.available = false
}

func (m *fakeManager) Available() bool { return m.available }

func (m *fakeManager) Target() string { return m.target }

func (m *fakeManager) RefreshAfterConnect() bool { return m.refreshAfter }

func strptr(s string) *string { return &s }

// newTestController wires a controller to a buffer-backed logger so tests
// can count emitted events per level.
func newTestController(m *fakeManager) (*tv.Controller, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	c := tv.NewController(m)
	c.SetLogger(zerolog.New(buf))
	return c, buf
}

func countLevel(buf *bytes.Buffer, level string) int {
	return strings.Count(buf.String(), `"level":"`+level+`"`)
}

func TestRefreshSuccess(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: true, shellFunc: func(cmd string) (*string, error) {
		return strptr(netflixPlaying), nil
	}}
	controller, _ := newTestController(manager)

	update, err := controller.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !update.Available {
		t.Error("device should be available")
	}
	if update.State != tv.StatePlaying {
		t.Errorf("state = %q, want %q", update.State, tv.StatePlaying)
	}
	if update.CurrentApp != "com.netflix.ninja" {
		t.Errorf("current app = %q", update.CurrentApp)
	}
	if len(update.RunningApps) != 1 {
		t.Errorf("running apps = %v", update.RunningApps)
	}
}

func TestFiveFailedRefreshes(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: true, connectOK: false,
		shellFunc: func(cmd string) (*string, error) {
			return nil, adb.ErrTimeout
		}}
	controller, buf := newTestController(manager)

	for i := 0; i < 5; i++ {
		update, err := controller.Refresh()
		if err != nil {
			t.Fatalf("cycle %d: classified failures must not surface as errors: %v", i, err)
		}
		if update.Available {
			t.Errorf("cycle %d: device should be unavailable", i)
		}
		if update.State != "" {
			t.Errorf("cycle %d: state should be empty, got %q", i, update.State)
		}
	}

	if got := countLevel(buf, "error"); got != 1 {
		t.Errorf("expected exactly 1 error event, got %d:\n%s", got, buf.String())
	}
	if got := countLevel(buf, "warn"); got != 1 {
		t.Errorf("expected exactly 1 warn event, got %d:\n%s", got, buf.String())
	}
	if manager.closeCalls != 1 {
		t.Errorf("connection should be closed once on the transition edge, got %d", manager.closeCalls)
	}
	// One reconnect attempt per cycle after the failure, never more.
	if manager.connectCalls != 4 {
		t.Errorf("expected 4 reconnect attempts, got %d", manager.connectCalls)
	}
}

func TestReconnectDefersRefreshOnDirectBackend(t *testing.T) {
	failed := false
	manager := &fakeManager{target: "IP:5555", available: true, refreshAfter: false,
		shellFunc: func(cmd string) (*string, error) {
			if !failed {
				failed = true
				return nil, adb.ErrBrokenPipe
			}
			return strptr(netflixPlaying), nil
		}}
	controller, buf := newTestController(manager)

	// Cycle 1: classified failure flips availability off.
	update, _ := controller.Refresh()
	if update.Available {
		t.Fatal("device should be unavailable after the failure")
	}

	// Cycle 2: reconnect succeeds but the data refresh waits for the
	// next cycle on the direct backend.
	manager.connectOK = true
	update, err := controller.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !update.Available {
		t.Error("device should be available after reconnect")
	}
	if update.State != "" {
		t.Errorf("reconnecting cycle should not return a state, got %q", update.State)
	}

	// Cycle 3: the refresh produces a recognized state.
	update, err = controller.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if update.State != tv.StatePlaying {
		t.Errorf("state = %q, want %q", update.State, tv.StatePlaying)
	}

	if got := countLevel(buf, "info"); got != 1 {
		t.Errorf("expected exactly 1 recovery event, got %d:\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "IP:5555") {
		t.Error("recovery event should identify the connection target")
	}
}

func TestReconnectRefreshesSameCycleOnServerBackend(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: false, connectOK: true, refreshAfter: true,
		shellFunc: func(cmd string) (*string, error) {
			return strptr(netflixPlaying), nil
		}}
	controller, buf := newTestController(manager)

	update, err := controller.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !update.Available {
		t.Error("device should be available after reconnect")
	}
	if update.State != tv.StatePlaying {
		t.Errorf("server backend should refresh in the reconnecting cycle, got state %q", update.State)
	}
	if got := countLevel(buf, "info"); got != 1 {
		t.Errorf("expected exactly 1 recovery event, got %d", got)
	}
}

func TestUnrecognizedStateForcesUnavailable(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: true,
		shellFunc: func(cmd string) (*string, error) {
			return strptr("garbage that is not device output"), nil
		}}
	controller, buf := newTestController(manager)

	update, err := controller.Refresh()
	if err != nil {
		t.Fatalf("translation failures are soft failures: %v", err)
	}
	if update.Available {
		t.Error("unrecognized output should mark the device unavailable")
	}
	if manager.closeCalls != 1 {
		t.Errorf("connection should be closed, got %d close calls", manager.closeCalls)
	}
	if got := countLevel(buf, "error"); got != 1 {
		t.Errorf("expected exactly 1 error event, got %d", got)
	}
}

func TestRefreshPropagatesDefects(t *testing.T) {
	defect := errors.New("slice bounds out of range")
	manager := &fakeManager{target: "IP:5555", available: true,
		shellFunc: func(cmd string) (*string, error) {
			return nil, defect
		}}
	controller, _ := newTestController(manager)

	if _, err := controller.Refresh(); !errors.Is(err, defect) {
		t.Fatalf("defects must propagate, got %v", err)
	}
	if !controller.Available() {
		t.Error("a defect is not a connectivity event")
	}
}

func TestRefreshDroppedCommandKeepsAvailability(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: true,
		shellFunc: func(cmd string) (*string, error) {
			return nil, nil // busy: another command in flight
		}}
	controller, buf := newTestController(manager)

	update, err := controller.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !update.Available {
		t.Error("a dropped command is not a failure")
	}
	if buf.Len() != 0 {
		t.Errorf("no events expected, got:\n%s", buf.String())
	}
}

func TestCommandGuardWhileUnavailable(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: false}
	controller, _ := newTestController(manager)

	out, err := controller.Command("input keyevent 3")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if out != nil {
		t.Error("commands should be no-ops while unavailable")
	}
	if manager.shellCalls != 0 {
		t.Errorf("no command should reach the manager, got %d calls", manager.shellCalls)
	}
}

func TestCommandClassifiedErrorDropsConnection(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: true,
		shellFunc: func(cmd string) (*string, error) {
			return nil, adb.ErrConnectionReset
		}}
	controller, buf := newTestController(manager)

	out, err := controller.Command("am force-stop com.netflix.ninja")
	if err != nil {
		t.Fatalf("classified errors must not surface: %v", err)
	}
	if out != nil {
		t.Error("failed command should return nil")
	}
	if controller.Available() {
		t.Error("controller should be unavailable after a classified failure")
	}
	if got := countLevel(buf, "error"); got != 1 {
		t.Errorf("expected exactly 1 error event, got %d", got)
	}
}

func TestSendIntent(t *testing.T) {
	var gotCmd string
	manager := &fakeManager{target: "IP:5555", available: true,
		shellFunc: func(cmd string) (*string, error) {
			gotCmd = cmd
			return strptr("Events injected: 1\r\n0"), nil
		}}
	controller, _ := newTestController(manager)

	res, err := controller.LaunchApp("com.netflix.ninja")
	if err != nil {
		t.Fatalf("LaunchApp failed: %v", err)
	}
	if res.Retcode != "0" {
		t.Errorf("retcode = %q, want 0", res.Retcode)
	}
	if res.Output != "Events injected: 1" {
		t.Errorf("output = %q", res.Output)
	}
	if !strings.Contains(gotCmd, "monkey -p com.netflix.ninja") {
		t.Errorf("unexpected command %q", gotCmd)
	}
}

func TestSendIntentWhileUnavailable(t *testing.T) {
	manager := &fakeManager{target: "IP:5555", available: false}
	controller, _ := newTestController(manager)

	res, err := controller.SendIntent("com.netflix.ninja", "android.intent.category.LAUNCHER", 1)
	if err != nil {
		t.Fatalf("SendIntent failed: %v", err)
	}
	if res != (tv.IntentResult{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
}
