package tv

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/achupryn/atvbridge/internal/adb"
)

// Update is the result of one refresh cycle. State is empty while the
// device is unavailable and on the reconnect-only cycle of the direct
// backend.
type Update struct {
	Available   bool      `json:"available"`
	State       PlayState `json:"state,omitempty"`
	CurrentApp  string    `json:"currentApp,omitempty"`
	RunningApps []string  `json:"runningApps,omitempty"`
}

// IntentResult carries the split output of a monkey intent command.
type IntentResult struct {
	Output  string `json:"output"`
	Retcode string `json:"retcode"`
}

// Controller wraps a connection manager with the availability state
// machine: it hides transient connectivity loss behind one reconnect
// attempt per poll cycle and collapses repeated failures into a single
// log event per transition edge.
type Controller struct {
	manager adb.Manager
	logger  zerolog.Logger

	mu              sync.RWMutex
	available       bool
	reconnectWarned bool
	state           PlayState
	props           Properties
}

// NewController creates a controller over manager. The initial
// availability is whatever the manager reports at construction.
func NewController(manager adb.Manager) *Controller {
	return &Controller{
		manager:   manager,
		logger:    log.Logger,
		available: manager.Available(),
	}
}

// SetLogger replaces the controller's logger.
func (c *Controller) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Available reports the availability as of the last refresh or command.
func (c *Controller) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// State returns the device state as of the last successful refresh, or an
// empty state while the device is unavailable.
func (c *Controller) State() PlayState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Properties returns the cached device properties from the last
// successful refresh.
func (c *Controller) Properties() Properties {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props
}

// Target returns the host:port of the controlled device.
func (c *Controller) Target() string {
	return c.manager.Target()
}

// Snapshot returns the last refresh result without touching the device.
func (c *Controller) Snapshot() Update {
	return c.snapshot()
}

// Refresh drives one poll cycle. While unavailable it attempts a single
// reconnect; the direct backend returns after a successful reconnect and
// defers the data refresh to the next cycle, the server backend proceeds
// straight into it. Classified connectivity failures flip availability
// off and are never returned as errors; anything else propagates.
func (c *Controller) Refresh() (Update, error) {
	if !c.Available() {
		if !c.manager.Connect(false) {
			c.mu.Lock()
			warned := c.reconnectWarned
			c.reconnectWarned = true
			c.mu.Unlock()
			if !warned {
				c.logger.Warn().Str("target", c.manager.Target()).Msg("Device still unavailable, will keep retrying")
			}
			return c.snapshot(), nil
		}

		c.mu.Lock()
		c.available = true
		c.reconnectWarned = false
		c.mu.Unlock()
		c.logger.Info().Str("target", c.manager.Target()).Msg("Device connection re-established")

		if !c.manager.RefreshAfterConnect() {
			// Reconnect and data refresh are never combined in one
			// cycle for the direct backend.
			return c.snapshot(), nil
		}
	}

	out, err := c.manager.Shell(PropertiesCommand)
	if err != nil {
		if adb.IsConnectivity(err) {
			c.dropConnection(err, "Device connection lost")
			return c.snapshot(), nil
		}
		return c.snapshot(), err
	}
	if out == nil {
		// Dropped: either a command is still in flight or the manager
		// noticed the connection was gone before sending.
		if !c.manager.Available() {
			c.dropConnection(nil, "Device connection lost")
		}
		return c.snapshot(), nil
	}

	props, err := ParseProperties(*out)
	if err != nil {
		c.dropConnection(err, "Device state not recognized")
		return c.snapshot(), nil
	}

	state := TranslateState(string(DeriveState(props)))
	if state == StateUnknown {
		c.dropConnection(nil, "Device state not recognized")
		return c.snapshot(), nil
	}

	c.mu.Lock()
	c.props = props
	c.state = state
	c.mu.Unlock()

	return c.snapshot(), nil
}

// Command runs a raw shell command through the availability guard.
func (c *Controller) Command(text string) (*string, error) {
	return c.run(func() (*string, error) {
		return c.manager.Shell(text)
	})
}

// SendIntent launches intent against pkg through the monkey runner and
// splits the output from the appended return code.
func (c *Controller) SendIntent(pkg, intent string, count int) (IntentResult, error) {
	cmd := fmt.Sprintf("monkey -p %s -c %s %d; echo $?", pkg, intent, count)
	out, err := c.Command(cmd)
	if err != nil || out == nil {
		return IntentResult{}, err
	}

	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(*out, "\r\n", "\n")), "\n")
	return IntentResult{
		Output:  strings.Join(lines[:len(lines)-1], "\n"),
		Retcode: lines[len(lines)-1],
	}, nil
}

// LaunchApp launches the app with the given package ID.
func (c *Controller) LaunchApp(app string) (IntentResult, error) {
	return c.SendIntent(app, intentLaunch, 1)
}

// StopApp force-stops the app with the given package ID.
func (c *Controller) StopApp(app string) (*string, error) {
	return c.Command(fmt.Sprintf("am force-stop %s", app))
}

// TurnOn wakes the device when the screen is off.
func (c *Controller) TurnOn() error {
	cmd := cmdScreenOn + fmt.Sprintf(" || (input keyevent %d && input keyevent %d)", keyPower, keyHome)
	_, err := c.Command(cmd)
	return err
}

// TurnOff puts the device to sleep when the screen is on.
func (c *Controller) TurnOff() error {
	cmd := cmdScreenOn + fmt.Sprintf(" && input keyevent %d", keySleep)
	_, err := c.Command(cmd)
	return err
}

// run applies the cross-cutting command guard: a no-op nil result while
// unavailable, classified failures converted to unavailability with one
// log event per edge, everything else returned to the caller untouched.
func (c *Controller) run(op func() (*string, error)) (*string, error) {
	if !c.Available() {
		return nil, nil
	}

	out, err := op()
	if err != nil {
		if adb.IsConnectivity(err) {
			c.dropConnection(err, "Device connection lost")
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// dropConnection closes the underlying connection and flips availability
// off, logging one ERROR event on the available-to-unavailable edge only.
func (c *Controller) dropConnection(err error, msg string) {
	c.manager.Close()

	c.mu.Lock()
	wasAvailable := c.available
	c.available = false
	c.state = ""
	c.mu.Unlock()

	if wasAvailable {
		evt := c.logger.Error().Str("target", c.manager.Target())
		if err != nil {
			evt = evt.Err(err)
		}
		evt.Msg(msg)
	}
}

func (c *Controller) snapshot() Update {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// The app fields accompany a state; until a refresh produces one the
	// cached properties are stale and stay private.
	if c.state == "" {
		return Update{Available: c.available}
	}
	return Update{
		Available:   c.available,
		State:       c.state,
		CurrentApp:  c.props.CurrentApp,
		RunningApps: c.props.RunningApps,
	}
}
